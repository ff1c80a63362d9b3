// Package sqlite provides the embedded file backend for Engram (spec §4.1,
// §6.4). Rows are stored in an on-disk SQLite database; vectors are not
// involved anywhere in this schema.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Client implements storage.Store using SQLite as the backend.
type Client struct {
	db *sql.DB
}

// Config configures a Client.
type Config struct {
	// DBPath is the path to the SQLite database file. Use ":memory:" for a
	// process-local, non-persisted store (used heavily in tests).
	DBPath string
}

// NewClient opens (creating if necessary) the database at cfg.DBPath and
// ensures the schema exists.
//
// Backend startup discipline (§4.1): schema initialization runs on a single
// dedicated connection (db.SetMaxOpenConns(1) during ensureSchema) before the
// pool is widened, to avoid file-lock contention while WAL journaling is
// being enabled — mirroring the reference sqlite backend's single-connection
// bootstrap discipline.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				return nil, fmt.Errorf("sqlite.NewClient: create directory: %w", err)
			}
		}
	}

	dsn := cfg.DBPath + "?_foreign_keys=1&_journal_mode=WAL&_synchronous=NORMAL"
	if cfg.DBPath == ":memory:" {
		dsn = "file::memory:?cache=shared&_foreign_keys=1"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.NewClient: %w", err)
	}

	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.NewClient: %w", err)
	}

	client := &Client{db: db}
	if err := client.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.DBPath != ":memory:" {
		db.SetMaxOpenConns(8)
	}

	return client, nil
}

// Close releases the underlying database connection.
func (c *Client) Close() error {
	return c.db.Close()
}

func encodeJSON(v interface{}) (string, error) {
	if v == nil {
		v = map[string]interface{}{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(b), nil
}

func decodeJSONInto(raw string, dest interface{}) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}
