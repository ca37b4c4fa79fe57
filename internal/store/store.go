package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// defaultIntervalMinutes is the fallback refresh interval for sources
// without computed statistics. Matches the schema default.
const defaultIntervalMinutes = 30

// Source is a subscribed feed.
type Source struct {
	ID               int64         `db:"id" json:"id"`
	URL              string        `db:"url" json:"url"`
	Title            string        `db:"title" json:"title"`
	SiteURL          string        `db:"site_url" json:"site_url"`
	Description      string        `db:"description" json:"description"`
	IconURL          string        `db:"icon_url" json:"icon_url"`
	FolderID         sql.NullInt64 `db:"folder_id" json:"folder_id"`
	Priority         int           `db:"priority" json:"priority"`
	OverrideInterval sql.NullInt64 `db:"override_interval" json:"override_interval"`
	Position         int           `db:"position" json:"position"`
	LastFetchedAt    sql.NullTime  `db:"last_fetched_at" json:"last_fetched_at"`
	LastNewItemAt    sql.NullTime  `db:"last_new_item_at" json:"last_new_item_at"`
	LastError        string        `db:"last_error" json:"last_error"`
	ErrorCount       int           `db:"error_count" json:"error_count"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
}

// Item is a fetched article. The (source_id, guid) pair is unique.
type Item struct {
	ID          int64     `db:"id" json:"id"`
	SourceID    int64     `db:"source_id" json:"source_id"`
	GUID        string    `db:"guid" json:"guid"`
	Title       string    `db:"title" json:"title"`
	Link        string    `db:"link" json:"link"`
	Author      string    `db:"author" json:"author"`
	PublishedAt time.Time `db:"published_at" json:"published_at"`
	Content     string    `db:"content" json:"content"`
	FullContent string    `db:"full_content" json:"full_content"`
	ImageURL    string    `db:"image_url" json:"image_url"`
	Read        bool      `db:"read" json:"read"`
	Starred     bool      `db:"starred" json:"starred"`
	Saved       bool      `db:"saved" json:"saved"`
	Opened      bool      `db:"opened" json:"opened"`
	Shared      bool      `db:"shared" json:"shared"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Statistics is the per-source statistics row, recomputed wholesale.
type Statistics struct {
	SourceID         int64         `db:"source_id" json:"source_id"`
	Items7d          int           `db:"items_7d" json:"items_7d"`
	Items30d         int           `db:"items_30d" json:"items_30d"`
	AvgPerDay        float64       `db:"avg_per_day" json:"avg_per_day"`
	AvgGapHours      float64       `db:"avg_gap_hours" json:"avg_gap_hours"`
	ReadCount        int           `db:"read_count" json:"read_count"`
	StarredCount     int           `db:"starred_count" json:"starred_count"`
	EngagedCount     int           `db:"engaged_count" json:"engaged_count"`
	ReadRate         float64       `db:"read_rate" json:"read_rate"`
	EngagementRate   float64       `db:"engagement_rate" json:"engagement_rate"`
	ComputedInterval int           `db:"computed_interval" json:"computed_interval"`
	Reason           string        `db:"reason" json:"reason"`
	ComputedAt       time.Time     `db:"computed_at" json:"computed_at"`
}

// Filter is a named suppression rule in the filter query language.
type Filter struct {
	ID      int64  `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Rule    string `db:"rule" json:"rule"`
	Enabled bool   `db:"enabled" json:"enabled"`
}

// Store wraps the SQLite database.
type Store struct {
	db *sqlx.DB
}

// New opens the SQLite database and runs migrations.
func New(path string) (*Store, error) {
	// _time_format=sqlite stores timestamps in a form julianday() can
	// parse, which DueSources depends on.
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSource subscribes a new feed URL.
func (s *Store) CreateSource(src *Source) error {
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO sources (url, title, site_url, description, icon_url, folder_id, priority, override_interval, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, src.URL, src.Title, src.SiteURL, src.Description, src.IconURL,
		src.FolderID, src.Priority, src.OverrideInterval, src.Position, src.CreatedAt)
	if err != nil {
		return fmt.Errorf("create source %s: %w", src.URL, err)
	}
	src.ID, _ = res.LastInsertId()
	return nil
}

// GetSource returns a source by id.
func (s *Store) GetSource(id int64) (*Source, error) {
	var src Source
	err := s.db.Get(&src, "SELECT * FROM sources WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source %d: %w", id, err)
	}
	return &src, nil
}

// GetSourceByURL returns a source by its feed URL.
func (s *Store) GetSourceByURL(url string) (*Source, error) {
	var src Source
	err := s.db.Get(&src, "SELECT * FROM sources WHERE url = ?", url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source %s: %w", url, err)
	}
	return &src, nil
}

// ListSources returns all sources ordered by position.
func (s *Store) ListSources() ([]Source, error) {
	var sources []Source
	if err := s.db.Select(&sources, "SELECT * FROM sources ORDER BY position, id"); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// DeleteSource removes a source; items, statistics and embeddings cascade.
func (s *Store) DeleteSource(id int64) error {
	_, err := s.db.Exec("DELETE FROM sources WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete source %d: %w", id, err)
	}
	return nil
}

// DueSources returns sources whose effective refresh interval has elapsed
// at the given time, or which have never been fetched. Effective interval
// resolution: manual override > computed > default. Highest priority
// first, stalest first within a priority.
func (s *Store) DueSources(now time.Time) ([]Source, error) {
	var sources []Source
	err := s.db.Select(&sources, `
		SELECT s.* FROM sources s
		LEFT JOIN source_statistics st ON st.source_id = s.id
		WHERE s.last_fetched_at IS NULL
		   OR (julianday(?) - julianday(s.last_fetched_at)) * 1440 >=
		      COALESCE(s.override_interval, st.computed_interval, ?)
		ORDER BY s.priority DESC, s.last_fetched_at ASC
	`, now.UTC(), defaultIntervalMinutes)
	if err != nil {
		return nil, fmt.Errorf("due sources: %w", err)
	}
	return sources, nil
}

// EffectiveInterval returns the refresh interval in minutes that the
// scheduler will use for the source, plus where it came from.
func (s *Store) EffectiveInterval(id int64) (minutes int, origin string, err error) {
	src, err := s.GetSource(id)
	if err != nil {
		return 0, "", err
	}
	if src.OverrideInterval.Valid {
		return int(src.OverrideInterval.Int64), "override", nil
	}
	stats, err := s.GetStatistics(id)
	if err == nil {
		return stats.ComputedInterval, "computed", nil
	}
	if errors.Is(err, ErrNotFound) {
		return defaultIntervalMinutes, "default", nil
	}
	return 0, "", err
}

// SetOverrideInterval pins a manual refresh interval. Zero clears it.
func (s *Store) SetOverrideInterval(id int64, minutes int) error {
	var v any
	if minutes > 0 {
		v = minutes
	}
	_, err := s.db.Exec("UPDATE sources SET override_interval = ? WHERE id = ?", v, id)
	if err != nil {
		return fmt.Errorf("set override interval %d: %w", id, err)
	}
	return nil
}

// MarkFetchSuccess clears the error state after a successful fetch and
// stamps last_new_item_at when the cycle added at least one item.
func (s *Store) MarkFetchSuccess(id int64, added int, now time.Time) error {
	now = now.UTC()
	var err error
	if added > 0 {
		_, err = s.db.Exec(`
			UPDATE sources SET last_fetched_at = ?, last_new_item_at = ?, last_error = '', error_count = 0
			WHERE id = ?`, now, now, id)
	} else {
		_, err = s.db.Exec(`
			UPDATE sources SET last_fetched_at = ?, last_error = '', error_count = 0
			WHERE id = ?`, now, id)
	}
	if err != nil {
		return fmt.Errorf("mark fetch success %d: %w", id, err)
	}
	return nil
}

// MarkFetchError records the error message and bumps the consecutive
// error counter. The fetch timestamp is still advanced so a broken
// source is not retried on every tick.
func (s *Store) MarkFetchError(id int64, msg string, now time.Time) error {
	_, err := s.db.Exec(`
		UPDATE sources SET last_fetched_at = ?, last_error = ?, error_count = error_count + 1
		WHERE id = ?`, now.UTC(), msg, id)
	if err != nil {
		return fmt.Errorf("mark fetch error %d: %w", id, err)
	}
	return nil
}

// UpdateSourceMeta refreshes feed-supplied metadata (title, site URL,
// description) without touching user edits to other fields.
func (s *Store) UpdateSourceMeta(id int64, title, siteURL, description string) error {
	_, err := s.db.Exec(`
		UPDATE sources SET
			title = CASE WHEN title = '' THEN ? ELSE title END,
			site_url = ?, description = ?
		WHERE id = ?`, title, siteURL, description, id)
	if err != nil {
		return fmt.Errorf("update source meta %d: %w", id, err)
	}
	return nil
}

// GetSetting returns a settings value, or "" when unset.
func (s *Store) GetSetting(key string) (string, error) {
	var v string
	err := s.db.Get(&v, "SELECT value FROM settings WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return v, nil
}

// SetSetting upserts a settings value.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}
