package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// schemaTable records one schema version per table prefix, since several
// prefixes can share a database file.
const schemaTable = "schema_migrations"

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Prefix  string
	Folders string
	History string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Prefix:  prefix,
		Folders: prefix + "folders",
		History: prefix + "history",
	}
}

// Open opens (creating if needed) the database file at path and applies
// migrations. Pragmas travel in the DSN so every pooled connection gets them:
// foreign keys on, WAL, a busy timeout, and BEGIN IMMEDIATE for transactions
// so a read-then-write sequence never upgrades its lock mid-transaction.
func Open(ctx context.Context, path string, tables *TableNames) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := Migrate(ctx, db, tables); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate applies schema migrations for the prefix in tables. Versions are
// tracked per prefix in schema_migrations.
func Migrate(ctx context.Context, db *sql.DB, tables *TableNames) error {
	createVersions := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	  prefix  TEXT PRIMARY KEY,
	  version INTEGER NOT NULL
	);`, schemaTable)
	if _, err := db.ExecContext(ctx, createVersions); err != nil {
		return fmt.Errorf("create %s: %w", schemaTable, err)
	}

	version, err := GetSchemaVersion(ctx, db, tables)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: folders + history
	if version < 1 {
		schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
		  id          TEXT PRIMARY KEY,
		  name        TEXT NOT NULL,
		  parent_id   TEXT REFERENCES %[1]s(id),
		  is_expanded INTEGER NOT NULL DEFAULT 1,
		  created_at  INTEGER NOT NULL,
		  updated_at  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_parent_id ON %[1]s(parent_id);

		CREATE TABLE IF NOT EXISTS %[2]s (
		  id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		  task_id              TEXT NOT NULL UNIQUE,
		  status               TEXT NOT NULL,
		  platform             TEXT NOT NULL,
		  folder_id            TEXT REFERENCES %[1]s(id) ON DELETE SET NULL,
		  title                TEXT,
		  cover_url            TEXT,
		  duration             INTEGER,
		  file_path            TEXT,
		  video_id             TEXT,
		  raw_info             TEXT,
		  transcript_full_text TEXT,
		  transcript_language  TEXT,
		  transcript_raw       TEXT,
		  transcript_segments  TEXT,
		  markdown_content     TEXT,
		  markdown_versions    TEXT,
		  form_data            TEXT,
		  created_at           INTEGER NOT NULL,
		  updated_at           INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_%[2]s_folder_id ON %[2]s(folder_id);
		CREATE INDEX IF NOT EXISTS idx_%[2]s_video ON %[2]s(video_id, platform);
		CREATE INDEX IF NOT EXISTS idx_%[2]s_created_at ON %[2]s(created_at DESC);
		`, tables.Folders, tables.History)

		if _, err := db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := setSchemaVersion(ctx, db, tables, 1); err != nil {
			return err
		}
	}

	return nil
}

// GetSchemaVersion returns the schema version recorded for the prefix, or 0
// when it has never been migrated.
func GetSchemaVersion(ctx context.Context, db *sql.DB, tables *TableNames) (int, error) {
	var version int
	query := fmt.Sprintf(`SELECT version FROM %s WHERE prefix = ?`, schemaTable)
	err := db.QueryRowContext(ctx, query, tables.Prefix).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

func setSchemaVersion(ctx context.Context, db *sql.DB, tables *TableNames, version int) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (prefix, version) VALUES (?, ?)
		ON CONFLICT(prefix) DO UPDATE SET version = excluded.version`, schemaTable)
	if _, err := db.ExecContext(ctx, stmt, tables.Prefix, version); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// DropAll drops the prefix's tables and forgets its schema version so the
// next Migrate rebuilds them. Other prefixes in the file are untouched.
func DropAll(ctx context.Context, db *sql.DB, tables *TableNames) error {
	stmt := fmt.Sprintf(`DROP TABLE IF EXISTS %s; DROP TABLE IF EXISTS %s;`, tables.History, tables.Folders)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	forget := fmt.Sprintf(`DELETE FROM %s WHERE prefix = ?`, schemaTable)
	if _, err := db.ExecContext(ctx, forget, tables.Prefix); err != nil {
		return fmt.Errorf("reset schema version: %w", err)
	}
	return nil
}
