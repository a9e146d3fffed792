// Package sqlitecache persists the last signed-in identity in a small
// SQLite key-value table.
package sqlitecache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"supportdesk/internal/domain"
)

const identityKey = "identity"

type Cache struct {
	db *sql.DB
}

// Open creates the database file (and its directory) when missing.
func Open(dsn string) (*Cache, error) {
	if dir := fileDir(dsn); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	// Every connection to :memory: is its own database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}
	return c, nil
}

func (c *Cache) migrate() error {
	_, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) Load(ctx context.Context) (domain.Identity, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, identityKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Identity{}, false, nil
	}
	if err != nil {
		return domain.Identity{}, false, fmt.Errorf("failed to read identity: %w", err)
	}
	var identity domain.Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return domain.Identity{}, false, fmt.Errorf("failed to decode identity: %w", err)
	}
	if strings.TrimSpace(identity.Email) == "" {
		return domain.Identity{}, false, nil
	}
	return identity, true, nil
}

func (c *Cache) Save(ctx context.Context, identity domain.Identity) error {
	buf, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		identityKey, string(buf), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write identity: %w", err)
	}
	return nil
}

func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, identityKey); err != nil {
		return fmt.Errorf("failed to clear identity: %w", err)
	}
	return nil
}

// fileDir returns the directory of a file-backed DSN, or "" for memory DSNs.
func fileDir(dsn string) string {
	if dsn == "" || dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	path := strings.TrimPrefix(dsn, "file:")
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}
