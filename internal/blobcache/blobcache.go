// Package blobcache provides a content-addressed byte-key/byte-value cache
// backed by SQLite. Entries are write-once-read-many; nothing here expires
// or invalidates them. An unreadable value is treated as a miss so callers
// re-fetch and overwrite.
package blobcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Cache is an on-disk key/value store for serialized provider payloads.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at the given path.
func Open(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return c, nil
}

func (c *Cache) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key        BLOB PRIMARY KEY,
		value      BLOB NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Get returns the value stored under key. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key []byte) (value []byte, ok bool, err error) {
	row := c.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return value, true, nil
}

// Put stores value under key, overwriting any previous entry. Concurrent
// writers to the same key are not coordinated; last write wins, which is
// acceptable for a best-effort cache.
func (c *Cache) Put(ctx context.Context, key, value []byte) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, created_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
