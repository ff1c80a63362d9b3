// Package mysql provides the MySQL-wire-protocol backend for Engram (spec
// §9: "additional backends only add implementations"). It targets both
// stock MySQL and OceanBase's MySQL-compatible mode, adapted from the
// reference client's connection idiom.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// Client implements storage.Store using a MySQL-wire-protocol backend.
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
}

// NewClient opens a connection pool against cfg and ensures the schema
// exists.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql.NewClient: %w", err)
	}

	db.SetMaxOpenConns(1)
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql.NewClient: %w", err)
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
