package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const applicationColumns = `id, page_id, page_url, subject, division, department_id,
	participant_count, representative_name, representative_knox_id,
	survey, skills, current_work, pain_point, improvement_idea,
	expected_effect, data_readiness, images, primary_category, categories,
	parse_status, parse_diagnosis, status, created_at, updated_at`

// UpsertApplication inserts the application keyed by page_id, or overwrites
// the parsed fields of the existing row. Classification and evaluation
// state survive a re-sync. Returns the row id and whether a new row was
// created.
func (db *DB) UpsertApplication(app *Application) (int64, bool, error) {
	survey, err := jsonText(app.Survey)
	if err != nil {
		return 0, false, fmt.Errorf("encoding survey: %w", err)
	}
	skills, err := jsonText(app.Skills)
	if err != nil {
		return 0, false, fmt.Errorf("encoding skills: %w", err)
	}
	images, err := jsonText(app.Images)
	if err != nil {
		return 0, false, fmt.Errorf("encoding images: %w", err)
	}

	var existing int64
	err = db.conn.QueryRow("SELECT id FROM applications WHERE page_id = ?", app.PageID).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		res, err := db.conn.Exec(`
			INSERT INTO applications (page_id, page_url, subject, division, department_id,
				participant_count, representative_name, representative_knox_id,
				survey, skills, current_work, pain_point, improvement_idea,
				expected_effect, data_readiness, images, parse_status, parse_diagnosis)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			app.PageID, app.PageURL, app.Subject, app.Division, app.DepartmentID,
			app.ParticipantCount, app.RepresentativeName, app.RepresentativeKnoxID,
			survey, skills, app.CurrentWork, app.PainPoint, app.ImprovementIdea,
			app.ExpectedEffect, app.DataReadiness, images, app.ParseStatus, app.ParseDiagnosis)
		if err != nil {
			return 0, false, fmt.Errorf("inserting application: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, err
		}
		app.ID = id
		return id, true, nil
	case err != nil:
		return 0, false, fmt.Errorf("looking up application: %w", err)
	}

	_, err = db.conn.Exec(`
		UPDATE applications SET page_url = ?, subject = ?, division = ?, department_id = ?,
			participant_count = ?, representative_name = ?, representative_knox_id = ?,
			survey = ?, skills = ?, current_work = ?, pain_point = ?, improvement_idea = ?,
			expected_effect = ?, data_readiness = ?, images = ?,
			parse_status = ?, parse_diagnosis = ?, updated_at = datetime('now')
		WHERE id = ?`,
		app.PageURL, app.Subject, app.Division, app.DepartmentID,
		app.ParticipantCount, app.RepresentativeName, app.RepresentativeKnoxID,
		survey, skills, app.CurrentWork, app.PainPoint, app.ImprovementIdea,
		app.ExpectedEffect, app.DataReadiness, images,
		app.ParseStatus, app.ParseDiagnosis, existing)
	if err != nil {
		return 0, false, fmt.Errorf("updating application: %w", err)
	}
	app.ID = existing
	return existing, false, nil
}

// GetApplication returns the application with the given row id.
func (db *DB) GetApplication(id int64) (*Application, error) {
	row := db.conn.QueryRow("SELECT "+applicationColumns+" FROM applications WHERE id = ?", id)
	return scanApplication(row)
}

// GetApplicationByPageID returns the application synced from the given page.
func (db *DB) GetApplicationByPageID(pageID string) (*Application, error) {
	row := db.conn.QueryRow("SELECT "+applicationColumns+" FROM applications WHERE page_id = ?", pageID)
	return scanApplication(row)
}

// ListApplications returns all applications, optionally filtered by status.
// Pass an empty status to list everything.
func (db *DB) ListApplications(status string) ([]*Application, error) {
	query := "SELECT " + applicationColumns + " FROM applications"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY id"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	defer rows.Close()

	var apps []*Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// UpdateApplicationClassification stores the classifier output for one
// application without touching any parsed fields.
func (db *DB) UpdateApplicationClassification(id int64, primary *string, categories []string) error {
	cats, err := jsonText(categories)
	if err != nil {
		return fmt.Errorf("encoding categories: %w", err)
	}
	res, err := db.conn.Exec(`
		UPDATE applications SET primary_category = ?, categories = ?, updated_at = datetime('now')
		WHERE id = ?`, primary, cats, id)
	if err != nil {
		return fmt.Errorf("updating classification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*Application, error) {
	var app Application
	var survey, skills, images, categories sql.NullString

	err := row.Scan(&app.ID, &app.PageID, &app.PageURL, &app.Subject, &app.Division,
		&app.DepartmentID, &app.ParticipantCount, &app.RepresentativeName,
		&app.RepresentativeKnoxID, &survey, &skills, &app.CurrentWork,
		&app.PainPoint, &app.ImprovementIdea, &app.ExpectedEffect,
		&app.DataReadiness, &images, &app.PrimaryCategory, &categories,
		&app.ParseStatus, &app.ParseDiagnosis, &app.Status,
		&app.CreatedAt, &app.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning application: %w", err)
	}

	if err := jsonField(survey, &app.Survey); err != nil {
		return nil, fmt.Errorf("decoding survey: %w", err)
	}
	if err := jsonField(skills, &app.Skills); err != nil {
		return nil, fmt.Errorf("decoding skills: %w", err)
	}
	if err := jsonField(images, &app.Images); err != nil {
		return nil, fmt.Errorf("decoding images: %w", err)
	}
	if err := jsonField(categories, &app.Categories); err != nil {
		return nil, fmt.Errorf("decoding categories: %w", err)
	}
	return &app, nil
}

// jsonText encodes a slice as a JSON text column; nil and empty slices
// are stored as NULL.
func jsonText(v any) (*string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	if s == "null" || s == "[]" {
		return nil, nil
	}
	return &s, nil
}

func jsonField(col sql.NullString, dest any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dest)
}
