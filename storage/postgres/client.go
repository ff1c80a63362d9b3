// Package postgres provides the PostgreSQL backend for Engram (spec §4.1,
// §6.4). It shares filter, ordering, and limit semantics with the sqlite and
// mysql backends bit-for-bit; only the SQL dialect and placeholder style
// differ.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

// Client implements storage.Store using PostgreSQL as the backend.
type Client struct {
	db *sql.DB
}

// Config configures a Client.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewClient opens a connection pool against cfg and ensures the schema
// exists.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.NewClient: %w", err)
	}

	// Backend startup discipline (§4.1): a single connection runs schema
	// migration before the pool is widened, avoiding a thundering herd of
	// concurrent CREATE TABLE IF NOT EXISTS statements against a cold DB.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres.NewClient: %w", err)
	}

	client := &Client{db: db}
	if err := client.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(16)
	return client, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

func encodeJSON(v interface{}) ([]byte, error) {
	if v == nil {
		v = map[string]interface{}{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return b, nil
}

func decodeJSONInto(raw []byte, dest interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}
