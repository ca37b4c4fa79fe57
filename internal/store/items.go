package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertItem persists an item with dedup on (source_id, guid). Returns
// true when a row was actually inserted; a duplicate is a benign no-op.
func (s *Store) InsertItem(item *Item) (bool, error) {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO items (source_id, guid, title, link, author, published_at, content, full_content, image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, guid) DO NOTHING
	`, item.SourceID, item.GUID, item.Title, item.Link, item.Author,
		item.PublishedAt.UTC(), item.Content, item.FullContent, item.ImageURL, item.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert item %q: %w", item.GUID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert item %q: %w", item.GUID, err)
	}
	if n > 0 {
		item.ID, _ = res.LastInsertId()
	}
	return n > 0, nil
}

// CountItems returns the number of items for a source.
func (s *Store) CountItems(sourceID int64) (int, error) {
	var n int
	if err := s.db.Get(&n, "SELECT COUNT(*) FROM items WHERE source_id = ?", sourceID); err != nil {
		return 0, fmt.Errorf("count items %d: %w", sourceID, err)
	}
	return n, nil
}

// ItemSample is the slice of an item the statistics engine needs.
type ItemSample struct {
	PublishedAt time.Time `db:"published_at"`
	Read        bool      `db:"read"`
	Starred     bool      `db:"starred"`
	Saved       bool      `db:"saved"`
	Opened      bool      `db:"opened"`
	Shared      bool      `db:"shared"`
}

// ItemSamples returns all items of a source in publication order, in the
// reduced form consumed by the statistics engine.
func (s *Store) ItemSamples(sourceID int64) ([]ItemSample, error) {
	var samples []ItemSample
	err := s.db.Select(&samples, `
		SELECT published_at, read, starred, saved, opened, shared
		FROM items WHERE source_id = ? ORDER BY published_at
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("item samples %d: %w", sourceID, err)
	}
	return samples, nil
}

// RecentItems returns items published after the cutoff, newest first,
// for similarity grouping and rule-match previews.
func (s *Store) RecentItems(since time.Time, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 200
	}
	var items []Item
	err := s.db.Select(&items, `
		SELECT * FROM items WHERE published_at >= ?
		ORDER BY published_at DESC, id DESC LIMIT ?
	`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("recent items: %w", err)
	}
	return items, nil
}

// PruneItems deletes read, non-starred, non-saved items published before
// the cutoff. Returns the number of rows removed.
func (s *Store) PruneItems(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM items
		WHERE read = 1 AND starred = 0 AND saved = 0 AND published_at < ?
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune items: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// AddFetchLog records the outcome of one fetch cycle for a source.
func (s *Store) AddFetchLog(sourceID int64, added, skipped int, errMsg string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO fetch_log (source_id, fetched_at, added, skipped, error)
		VALUES (?, ?, ?, ?, ?)
	`, sourceID, at.UTC(), added, skipped, errMsg)
	if err != nil {
		return fmt.Errorf("add fetch log %d: %w", sourceID, err)
	}
	return nil
}

// PruneFetchLog deletes audit rows older than the cutoff.
func (s *Store) PruneFetchLog(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM fetch_log WHERE fetched_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune fetch log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// UpsertStatistics replaces the statistics row for a source wholesale.
func (s *Store) UpsertStatistics(st *Statistics) error {
	_, err := s.db.Exec(`
		INSERT INTO source_statistics (source_id, items_7d, items_30d, avg_per_day, avg_gap_hours,
			read_count, starred_count, engaged_count, read_rate, engagement_rate,
			computed_interval, reason, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			items_7d = excluded.items_7d,
			items_30d = excluded.items_30d,
			avg_per_day = excluded.avg_per_day,
			avg_gap_hours = excluded.avg_gap_hours,
			read_count = excluded.read_count,
			starred_count = excluded.starred_count,
			engaged_count = excluded.engaged_count,
			read_rate = excluded.read_rate,
			engagement_rate = excluded.engagement_rate,
			computed_interval = excluded.computed_interval,
			reason = excluded.reason,
			computed_at = excluded.computed_at
	`, st.SourceID, st.Items7d, st.Items30d, st.AvgPerDay, st.AvgGapHours,
		st.ReadCount, st.StarredCount, st.EngagedCount, st.ReadRate, st.EngagementRate,
		st.ComputedInterval, st.Reason, st.ComputedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert statistics %d: %w", st.SourceID, err)
	}
	return nil
}

// GetStatistics returns the statistics row for a source.
func (s *Store) GetStatistics(sourceID int64) (*Statistics, error) {
	var st Statistics
	err := s.db.Get(&st, "SELECT * FROM source_statistics WHERE source_id = ?", sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get statistics %d: %w", sourceID, err)
	}
	return &st, nil
}
