package store

const schema = `
CREATE TABLE IF NOT EXISTS folders (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL UNIQUE,
    position   INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    url               TEXT NOT NULL UNIQUE,
    title             TEXT NOT NULL DEFAULT '',
    site_url          TEXT NOT NULL DEFAULT '',
    description       TEXT NOT NULL DEFAULT '',
    icon_url          TEXT NOT NULL DEFAULT '',
    folder_id         INTEGER REFERENCES folders(id) ON DELETE SET NULL,
    priority          INTEGER NOT NULL DEFAULT 0,
    override_interval INTEGER,
    position          INTEGER NOT NULL DEFAULT 0,
    last_fetched_at   DATETIME,
    last_new_item_at  DATETIME,
    last_error        TEXT NOT NULL DEFAULT '',
    error_count       INTEGER NOT NULL DEFAULT 0,
    created_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id    INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    guid         TEXT NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    link         TEXT NOT NULL DEFAULT '',
    author       TEXT NOT NULL DEFAULT '',
    published_at DATETIME NOT NULL,
    content      TEXT NOT NULL DEFAULT '',
    full_content TEXT NOT NULL DEFAULT '',
    image_url    TEXT NOT NULL DEFAULT '',
    read         BOOLEAN NOT NULL DEFAULT 0,
    starred      BOOLEAN NOT NULL DEFAULT 0,
    saved        BOOLEAN NOT NULL DEFAULT 0,
    opened       BOOLEAN NOT NULL DEFAULT 0,
    shared       BOOLEAN NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL,
    UNIQUE(source_id, guid)
);

CREATE INDEX IF NOT EXISTS idx_items_source ON items(source_id);
CREATE INDEX IF NOT EXISTS idx_items_published ON items(published_at);

CREATE TABLE IF NOT EXISTS source_statistics (
    source_id         INTEGER PRIMARY KEY REFERENCES sources(id) ON DELETE CASCADE,
    items_7d          INTEGER NOT NULL DEFAULT 0,
    items_30d         INTEGER NOT NULL DEFAULT 0,
    avg_per_day       REAL NOT NULL DEFAULT 0,
    avg_gap_hours     REAL NOT NULL DEFAULT 0,
    read_count        INTEGER NOT NULL DEFAULT 0,
    starred_count     INTEGER NOT NULL DEFAULT 0,
    engaged_count     INTEGER NOT NULL DEFAULT 0,
    read_rate         REAL NOT NULL DEFAULT 0,
    engagement_rate   REAL NOT NULL DEFAULT 0,
    computed_interval INTEGER NOT NULL DEFAULT 30,
    reason            TEXT NOT NULL DEFAULT '',
    computed_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS embeddings (
    item_id INTEGER PRIMARY KEY REFERENCES items(id) ON DELETE CASCADE,
    model   TEXT NOT NULL,
    dims    INTEGER NOT NULL,
    vector  BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS filters (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    name    TEXT NOT NULL,
    rule    TEXT NOT NULL,
    enabled BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS fetch_log (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id  INTEGER NOT NULL,
    fetched_at DATETIME NOT NULL,
    added      INTEGER NOT NULL DEFAULT 0,
    skipped    INTEGER NOT NULL DEFAULT 0,
    error      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_fetch_log_time ON fetch_log(fetched_at);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
