package store

import (
	"database/sql"
	"fmt"
)

// AppendEvaluationResult records one evaluation run. History is
// append-only: prior rows are never mutated. A successful AI parse flips
// the application status to ai_evaluated; a human result to
// human_evaluated, which a later AI run does not downgrade.
func (db *DB) AppendEvaluationResult(result *EvaluationResult) (int64, error) {
	grades, err := jsonText(result.Grades)
	if err != nil {
		return 0, fmt.Errorf("encoding grades: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO evaluation_history (application_id, source, overall_grade,
			grades, summary, raw_response, failed_parse)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.ApplicationID, result.Source, result.OverallGrade,
		grades, result.Summary, result.RawResponse, result.FailedParse)
	if err != nil {
		return 0, fmt.Errorf("inserting evaluation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if !result.FailedParse {
		var stmt string
		switch result.Source {
		case SourceHuman:
			stmt = "UPDATE applications SET status = 'human_evaluated', updated_at = datetime('now') WHERE id = ?"
		default:
			stmt = "UPDATE applications SET status = 'ai_evaluated', updated_at = datetime('now') WHERE id = ? AND status != 'human_evaluated'"
		}
		if _, err := tx.Exec(stmt, result.ApplicationID); err != nil {
			return 0, fmt.Errorf("updating application status: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing evaluation: %w", err)
	}
	result.ID = id
	return id, nil
}

const evaluationColumns = `id, application_id, source, overall_grade, grades,
	summary, raw_response, failed_parse, created_at`

// ListEvaluationResults returns the full history for an application,
// oldest first.
func (db *DB) ListEvaluationResults(applicationID int64) ([]*EvaluationResult, error) {
	rows, err := db.conn.Query(
		"SELECT "+evaluationColumns+" FROM evaluation_history WHERE application_id = ? ORDER BY id",
		applicationID)
	if err != nil {
		return nil, fmt.Errorf("listing evaluations: %w", err)
	}
	defer rows.Close()

	var results []*EvaluationResult
	for rows.Next() {
		r, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// LatestEvaluationResult returns the most recent run for an application,
// or ErrNotFound if it has never been evaluated.
func (db *DB) LatestEvaluationResult(applicationID int64) (*EvaluationResult, error) {
	row := db.conn.QueryRow(
		"SELECT "+evaluationColumns+" FROM evaluation_history WHERE application_id = ? ORDER BY id DESC LIMIT 1",
		applicationID)
	return scanEvaluation(row)
}

func scanEvaluation(row rowScanner) (*EvaluationResult, error) {
	var r EvaluationResult
	var grades sql.NullString
	var overall sql.NullString

	err := row.Scan(&r.ID, &r.ApplicationID, &r.Source, &overall, &grades,
		&r.Summary, &r.RawResponse, &r.FailedParse, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning evaluation: %w", err)
	}

	r.OverallGrade = overall.String
	if err := jsonField(grades, &r.Grades); err != nil {
		return nil, fmt.Errorf("decoding grades: %w", err)
	}
	return &r, nil
}
