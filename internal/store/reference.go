package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// ListCategories returns all active technology categories in display order.
func (db *DB) ListCategories() ([]*Category, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, description, keywords, display_order, is_active
		FROM ai_categories WHERE is_active = 1 ORDER BY display_order, id`)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	var cats []*Category
	for rows.Next() {
		var c Category
		var keywords sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &keywords, &c.DisplayOrder, &c.IsActive); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		if err := jsonField(keywords, &c.Keywords); err != nil {
			return nil, fmt.Errorf("decoding keywords for %q: %w", c.Name, err)
		}
		cats = append(cats, &c)
	}
	return cats, rows.Err()
}

// ListCriteria returns all active evaluation criteria in display order.
func (db *DB) ListCriteria() ([]*Criterion, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, description, guide, weight, display_order, is_active
		FROM evaluation_criteria WHERE is_active = 1 ORDER BY display_order, id`)
	if err != nil {
		return nil, fmt.Errorf("listing criteria: %w", err)
	}
	defer rows.Close()

	var crits []*Criterion
	for rows.Next() {
		var c Criterion
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Guide, &c.Weight, &c.DisplayOrder, &c.IsActive); err != nil {
			return nil, fmt.Errorf("scanning criterion: %w", err)
		}
		crits = append(crits, &c)
	}
	return crits, rows.Err()
}

// ListDepartments returns all departments.
func (db *DB) ListDepartments() ([]*Department, error) {
	rows, err := db.conn.Query("SELECT id, name FROM departments ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing departments: %w", err)
	}
	defer rows.Close()

	var deps []*Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, fmt.Errorf("scanning department: %w", err)
		}
		deps = append(deps, &d)
	}
	return deps, rows.Err()
}

// GetDepartment returns one department by id.
func (db *DB) GetDepartment(id int64) (*Department, error) {
	var d Department
	err := db.conn.QueryRow("SELECT id, name FROM departments WHERE id = ?", id).Scan(&d.ID, &d.Name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up department: %w", err)
	}
	return &d, nil
}

// EnsureDepartment returns the id for the named department, creating it
// on first sight.
func (db *DB) EnsureDepartment(name string) (int64, error) {
	var id int64
	err := db.conn.QueryRow("SELECT id FROM departments WHERE name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("looking up department: %w", err)
	}
	res, err := db.conn.Exec("INSERT INTO departments (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("inserting department: %w", err)
	}
	return res.LastInsertId()
}

// FindDepartmentByDivision matches a free-text division string against the
// known departments by substring in either direction. Longer names win so
// that a specific team beats its parent organisation.
func (db *DB) FindDepartmentByDivision(division string) (*Department, error) {
	division = strings.TrimSpace(division)
	if division == "" {
		return nil, ErrNotFound
	}

	deps, err := db.ListDepartments()
	if err != nil {
		return nil, err
	}

	var best *Department
	for _, d := range deps {
		if strings.Contains(division, d.Name) || strings.Contains(d.Name, division) {
			if best == nil || len(d.Name) > len(best.Name) {
				best = d
			}
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

// GetStats returns aggregate counts for the status command.
func (db *DB) GetStats() (*Stats, error) {
	var s Stats
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM applications", &s.TotalApplications},
		{"SELECT COUNT(*) FROM applications WHERE parse_status = 'ok'", &s.ParseOK},
		{"SELECT COUNT(*) FROM applications WHERE parse_status = 'partial'", &s.ParsePartial},
		{"SELECT COUNT(*) FROM applications WHERE parse_status = 'failed'", &s.ParseFailed},
		{"SELECT COUNT(*) FROM applications WHERE status != 'pending'", &s.Evaluated},
		{"SELECT COUNT(*) FROM evaluation_history", &s.EvaluationRuns},
		{"SELECT COUNT(*) FROM ai_categories WHERE is_active = 1", &s.Categories},
		{"SELECT COUNT(*) FROM evaluation_criteria WHERE is_active = 1", &s.Criteria},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("gathering stats: %w", err)
		}
	}
	return &s, nil
}
