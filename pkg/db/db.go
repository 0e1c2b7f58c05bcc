package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"stadiumhq/pkg/config"

	_ "github.com/lib/pq"   // Register postgres driver
	_ "modernc.org/sqlite" // Register sqlite driver
)

// Dialect names the SQL flavour behind a DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the database selected by cfg and runs migrations.
func Open(cfg *config.DBConfig) (*DB, error) {
	switch Dialect(cfg.Driver) {
	case Postgres:
		return OpenPostgres(cfg.DSN)
	case SQLite:
		return Init(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}

// Init opens the SQLite database at path and runs migrations.
func Init(path string) (*DB, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Enable WAL mode for better concurrency and set busy timeout
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &DB{DB: db, Dialect: SQLite}
	// Enforce single connection to avoid SQLITE_BUSY errors during concurrent writes
	db.SetMaxOpenConns(1)

	if err := d.migrate(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

// OpenPostgres connects to a PostgreSQL server and runs migrations.
func OpenPostgres(dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	d := &DB{DB: db, Dialect: Postgres}
	if err := d.migrate(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return d, nil
}

// Rebind rewrites '?' placeholders into the dialect's form.
func (d *DB) Rebind(query string) string {
	if d.Dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// TimeArg converts t into a value comparable with the dialect's timestamp columns.
// SQLite stores CURRENT_TIMESTAMP as UTC text (YYYY-MM-DD HH:MM:SS).
func (d *DB) TimeArg(t time.Time) any {
	if d.Dialect == SQLite {
		return t.UTC().Format(time.DateTime)
	}
	return t.UTC()
}

// PruneCache removes cache entries older than the specified duration.
func (d *DB) PruneCache(olderThan time.Duration) (int64, error) {
	deadline := d.TimeArg(time.Now().Add(-olderThan))
	res, err := d.Exec(d.Rebind("DELETE FROM cache WHERE created_at < ?"), deadline)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *DB) migrate(queries []string) error {
	for _, q := range queries {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS stadiums (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		wiki_title TEXT NOT NULL UNIQUE,
		wikidata_id TEXT,
		wiki_url TEXT,
		wiki_image TEXT,
		description TEXT,
		history_summary TEXT,
		history_html TEXT,
		lat REAL,
		lon REAL,
		locality TEXT,
		borough TEXT,
		city TEXT,
		metro_area TEXT,
		region TEXT,
		country TEXT,
		country_code TEXT,
		admin_path TEXT,
		location_tokens TEXT,
		search_location_text TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE INDEX IF NOT EXISTS idx_stadiums_wikidata_id ON stadiums(wikidata_id);`,
	`CREATE TABLE IF NOT EXISTS persistent_state (
		key TEXT PRIMARY KEY,
		value TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		value BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS stadiums (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		wiki_title TEXT NOT NULL UNIQUE,
		wikidata_id TEXT,
		wiki_url TEXT,
		wiki_image TEXT,
		description TEXT,
		history_summary TEXT,
		history_html TEXT,
		lat DOUBLE PRECISION,
		lon DOUBLE PRECISION,
		locality TEXT,
		borough TEXT,
		city TEXT,
		metro_area TEXT,
		region TEXT,
		country TEXT,
		country_code TEXT,
		admin_path TEXT[],
		location_tokens TEXT[],
		search_location_text TEXT,
		created_at TIMESTAMPTZ DEFAULT now(),
		updated_at TIMESTAMPTZ DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_stadiums_wikidata_id ON stadiums(wikidata_id);`,
	`CREATE TABLE IF NOT EXISTS persistent_state (
		key TEXT PRIMARY KEY,
		value TEXT,
		created_at TIMESTAMPTZ DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		value BYTEA,
		created_at TIMESTAMPTZ DEFAULT now()
	);`,
}
