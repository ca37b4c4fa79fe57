package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// CreateFilter stores a new suppression rule.
func (s *Store) CreateFilter(f *Filter) error {
	res, err := s.db.Exec(
		"INSERT INTO filters (name, rule, enabled) VALUES (?, ?, ?)",
		f.Name, f.Rule, f.Enabled)
	if err != nil {
		return fmt.Errorf("create filter %q: %w", f.Name, err)
	}
	f.ID, _ = res.LastInsertId()
	return nil
}

// GetFilter returns a filter by id.
func (s *Store) GetFilter(id int64) (*Filter, error) {
	var f Filter
	err := s.db.Get(&f, "SELECT * FROM filters WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get filter %d: %w", id, err)
	}
	return &f, nil
}

// ListFilters returns filters, optionally only the enabled ones.
func (s *Store) ListFilters(enabledOnly bool) ([]Filter, error) {
	q := "SELECT * FROM filters"
	if enabledOnly {
		q += " WHERE enabled = 1"
	}
	q += " ORDER BY id"

	var filters []Filter
	if err := s.db.Select(&filters, q); err != nil {
		return nil, fmt.Errorf("list filters: %w", err)
	}
	return filters, nil
}

// UpdateFilter replaces a filter's name, rule text and enabled flag.
func (s *Store) UpdateFilter(f *Filter) error {
	_, err := s.db.Exec(
		"UPDATE filters SET name = ?, rule = ?, enabled = ? WHERE id = ?",
		f.Name, f.Rule, f.Enabled, f.ID)
	if err != nil {
		return fmt.Errorf("update filter %d: %w", f.ID, err)
	}
	return nil
}

// DeleteFilter removes a filter.
func (s *Store) DeleteFilter(id int64) error {
	_, err := s.db.Exec("DELETE FROM filters WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete filter %d: %w", id, err)
	}
	return nil
}
