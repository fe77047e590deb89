package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	db *sql.DB
}

func NewDB(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS backlog_items (
            id TEXT PRIMARY KEY,
            identifier TEXT NOT NULL,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            priority INTEGER NOT NULL DEFAULT 0 CHECK (priority BETWEEN 0 AND 4),
            priority_label TEXT NOT NULL,
            status TEXT NOT NULL,
            status_type TEXT NOT NULL,
            assignee_id TEXT,
            assignee_name TEXT,
            project_id TEXT,
            project_name TEXT,
            team_id TEXT,
            team_key TEXT,
            labels TEXT NOT NULL DEFAULT '[]',
            url TEXT NOT NULL DEFAULT '',
            sort_order REAL NOT NULL DEFAULT 0,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS sync_history (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            status TEXT NOT NULL,
            trigger_type TEXT NOT NULL,
            triggered_by TEXT,
            started_at DATETIME NOT NULL,
            completed_at DATETIME,
            duration_ms INTEGER,
            items_synced INTEGER NOT NULL DEFAULT 0,
            items_failed INTEGER NOT NULL DEFAULT 0,
            error_message TEXT,
            error_details TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_backlog_items_status_type ON backlog_items(status_type)`,
		`CREATE INDEX IF NOT EXISTS idx_backlog_items_sort_order ON backlog_items(sort_order)`,
		`CREATE INDEX IF NOT EXISTS idx_backlog_items_project_id ON backlog_items(project_id)`,

		`CREATE INDEX IF NOT EXISTS idx_sync_history_started_at ON sync_history(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_history_status ON sync_history(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
