package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	// Pragmas ride in the DSN so every connection database/sql pools gets
	// them, not just the one a PRAGMA statement happens to run on.
	// _txlock=immediate takes the write lock at BEGIN, so concurrent
	// writers queue on busy_timeout instead of failing SQLITE_BUSY when a
	// deferred transaction tries to upgrade.
	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing. Pipelines and runs are
// stored as JSON documents keyed by UUID; the engine only ever does point
// lookups and simple equality scans over them.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pipelines (
  id          TEXT PRIMARY KEY,
  name        TEXT NOT NULL,
  fingerprint TEXT NOT NULL,
  doc         JSON NOT NULL,
  created_at  TEXT NOT NULL,
  updated_at  TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS runs (
  id          TEXT PRIMARY KEY,
  pipeline_id TEXT NOT NULL,
  status      TEXT NOT NULL,
  doc         JSON NOT NULL,
  start_time  TEXT NOT NULL,
  end_time    TEXT
);`,
		`CREATE TABLE IF NOT EXISTS run_results (
  id          TEXT PRIMARY KEY,
  run_id      TEXT NOT NULL,
  node_id     TEXT NOT NULL,
  recorded_at TEXT NOT NULL,
  data        JSON NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS container_tasks (
  id             TEXT PRIMARY KEY,
  action         TEXT NOT NULL,
  container_name TEXT NOT NULL,
  image_name     TEXT,
  environment    JSON,
  pipeline_id    TEXT,
  run_id         TEXT,
  status         TEXT NOT NULL,
  created_at     TEXT NOT NULL,
  taken_at       TEXT
);`,
		`CREATE TABLE IF NOT EXISTS instance_counters (
  node_id TEXT PRIMARY KEY,
  count   INTEGER NOT NULL DEFAULT 0
);`,
		`CREATE INDEX IF NOT EXISTS runs_pipeline_id_start_time_idx ON runs(pipeline_id, start_time);`,
		`CREATE INDEX IF NOT EXISTS runs_status_idx ON runs(status);`,
		`CREATE INDEX IF NOT EXISTS run_results_run_id_idx ON run_results(run_id);`,
		`CREATE INDEX IF NOT EXISTS container_tasks_status_created_at_idx ON container_tasks(status, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
