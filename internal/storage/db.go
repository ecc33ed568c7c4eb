package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DB is the subset of database/sql used by the repositories. Both *sql.DB
// and *sql.Tx satisfy it.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// OpenOptions selects and configures the database driver.
type OpenOptions struct {
	Driver       string // sqlite or postgres
	SQLitePath   string
	PostgresDSN  string
	MaxOpenConns int
}

// Open opens a database handle for the configured driver. SQLite handles are
// capped at one open connection; the upsert pattern is check-then-write and
// must not interleave.
func Open(opts OpenOptions) (*sql.DB, error) {
	switch opts.Driver {
	case "sqlite":
		db, err := sql.Open("sqlite3", opts.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		return db, nil
	case "postgres":
		db, err := sql.Open("postgres", opts.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
	}
}

// All SQL uses $N placeholders, which both lib/pq and mattn/go-sqlite3
// accept, and a type vocabulary (TEXT, REAL, INTEGER) valid on both engines.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		article_id TEXT PRIMARY KEY,
		name       TEXT,
		price      REAL,
		stock      INTEGER,
		category   TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS properties (
		article_id     TEXT NOT NULL,
		property_name  TEXT NOT NULL,
		property_value TEXT NOT NULL,
		property_unit  TEXT,
		language       TEXT NOT NULL,
		PRIMARY KEY (article_id, property_name, language)
	)`,
	`CREATE TABLE IF NOT EXISTS property_definitions (
		id            TEXT PRIMARY KEY,
		name_de       TEXT NOT NULL DEFAULT '',
		name_en       TEXT NOT NULL DEFAULT '',
		data_type     TEXT NOT NULL DEFAULT 'string',
		expected_unit TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS attribute_mappings (
		original_name TEXT NOT NULL,
		language      TEXT NOT NULL,
		standard_name TEXT NOT NULL,
		confidence    REAL NOT NULL DEFAULT 1.0,
		PRIMARY KEY (original_name, language)
	)`,
	`CREATE TABLE IF NOT EXISTS property_overrides (
		article_id     TEXT NOT NULL,
		property_name  TEXT NOT NULL,
		override_value TEXT NOT NULL,
		language       TEXT NOT NULL,
		PRIMARY KEY (article_id, property_name, language)
	)`,
	`CREATE TABLE IF NOT EXISTS category_property_overrides (
		category       TEXT NOT NULL,
		property_name  TEXT NOT NULL,
		override_value TEXT NOT NULL,
		language       TEXT NOT NULL,
		PRIMARY KEY (category, property_name, language)
	)`,
}

// InitSchema creates all tables if they do not exist yet.
func InitSchema(ctx context.Context, db DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
