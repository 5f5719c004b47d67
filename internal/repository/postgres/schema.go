package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the folders and history tables if they do not exist.
// It is idempotent and also upgrades history tables created before folders
// existed (no folder_id column).
func Migrate(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[1]s (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				parent_id   TEXT REFERENCES %[1]s(id),
				is_expanded BOOLEAN NOT NULL DEFAULT TRUE,
				created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, tables.Folders),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_parent_id ON %[1]s(parent_id)`, tables.Folders),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[1]s (
				id                   BIGSERIAL PRIMARY KEY,
				task_id              TEXT NOT NULL UNIQUE,
				status               TEXT NOT NULL,
				platform             TEXT NOT NULL,
				title                TEXT,
				cover_url            TEXT,
				duration             INTEGER,
				file_path            TEXT,
				video_id             TEXT,
				raw_info             JSONB,
				transcript_full_text TEXT,
				transcript_language  TEXT,
				transcript_raw       JSONB,
				transcript_segments  JSONB,
				markdown_content     TEXT,
				markdown_versions    JSONB,
				form_data            JSONB,
				created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, tables.History),
		fmt.Sprintf(`
			ALTER TABLE %[1]s
			ADD COLUMN IF NOT EXISTS folder_id TEXT REFERENCES %[2]s(id) ON DELETE SET NULL`,
			tables.History, tables.Folders),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_folder_id ON %[1]s(folder_id)`, tables.History),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_video ON %[1]s(video_id, platform)`, tables.History),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_created_at ON %[1]s(created_at DESC)`, tables.History),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}

	return nil
}

// DropAll drops both tables. Used by tests and notectl migrate --reset.
func DropAll(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	query := fmt.Sprintf(`DROP TABLE IF EXISTS %s, %s CASCADE`, tables.History, tables.Folders)
	if _, err := pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	return nil
}
