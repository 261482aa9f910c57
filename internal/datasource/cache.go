package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/bmo/pkg/metrics"
	"github.com/vanderheijden86/bmo/pkg/model"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	module     TEXT PRIMARY KEY,
	fetched_at INTEGER NOT NULL,
	count      INTEGER NOT NULL,
	payload    BLOB NOT NULL
)`

// Cache stores the last successfully fetched records of every module, so a
// failed refresh can serve last-known data flagged as stale.
type Cache struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// OpenCache opens or creates the cache database at path. Use ":memory:"
// for a throwaway cache.
func OpenCache(path string) (*Cache, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open cache: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return &Cache{db: db, path: path}, nil
}

// Path returns the database path.
func (c *Cache) Path() string { return c.path }

// Close closes the database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Save replaces the cached records of module.
func (c *Cache) Save(ctx context.Context, module model.Module, records []model.Record, fetchedAt time.Time) error {
	defer metrics.Timer(metrics.CacheWrite)()
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s cache: %w", module, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO snapshots (module, fetched_at, count, payload) VALUES (?, ?, ?, ?)
		 ON CONFLICT(module) DO UPDATE SET fetched_at = excluded.fetched_at, count = excluded.count, payload = excluded.payload`,
		string(module), fetchedAt.UnixMilli(), len(records), payload)
	if err != nil {
		return fmt.Errorf("save %s cache: %w", module, err)
	}
	return nil
}

// Load returns the cached records of module and when they were fetched.
// A module never cached yields ErrNotFound.
func (c *Cache) Load(ctx context.Context, module model.Module) ([]model.Record, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var fetchedAt int64
	var payload []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT fetched_at, payload FROM snapshots WHERE module = ?`, string(module)).Scan(&fetchedAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, fmt.Errorf("%s cache: %w", module, ErrNotFound)
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load %s cache: %w", module, err)
	}
	var records []model.Record
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode %s cache: %w", module, err)
	}
	return records, time.UnixMilli(fetchedAt).UTC(), nil
}

// Entry describes one cached module.
type Entry struct {
	Module    model.Module
	FetchedAt time.Time
	Count     int
}

// Entries lists the cached modules ordered by name.
func (c *Cache) Entries(ctx context.Context) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, err := c.db.QueryContext(ctx, `SELECT module, fetched_at, count FROM snapshots ORDER BY module`)
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var module string
		var ms int64
		if err := rows.Scan(&module, &ms, &e.Count); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		e.Module = model.Module(module)
		e.FetchedAt = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
