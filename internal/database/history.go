package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trackmirror/internal/domain"
	"trackmirror/internal/models"
)

const (
	// HistoryDefaultLimit is used when the caller asks for 0 entries.
	HistoryDefaultLimit = 50
	// HistoryMaxLimit caps a single history page.
	HistoryMaxLimit = 200
)

// CreateEntry inserts a history row with status=syncing and returns its id.
// This happens before any upstream call, so a crash mid-sync stays visible
// as a permanently syncing row instead of disappearing.
func (d *DB) CreateEntry(ctx context.Context, triggerType string, triggeredBy *string) (int64, error) {
	query := `INSERT INTO sync_history (status, trigger_type, triggered_by, started_at, created_at)
              VALUES (?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := d.db.ExecContext(ctx, query, models.SyncStatusSyncing, triggerType, triggeredBy, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create sync history entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// CompleteEntry performs the single terminal update of a history row.
// A second completion attempt for the same id is an error.
func (d *DB) CompleteEntry(ctx context.Context, id int64, completion domain.SyncCompletion) error {
	query := `UPDATE sync_history
              SET status = ?, completed_at = ?, duration_ms = ?, items_synced = ?, items_failed = ?, error_message = ?, error_details = ?
              WHERE id = ? AND completed_at IS NULL`

	result, err := d.db.ExecContext(ctx, query,
		completion.Status,
		time.Now().UTC(),
		completion.DurationMs,
		completion.ItemsSynced,
		completion.ItemsFailed,
		completion.ErrorMessage,
		completion.ErrorDetails,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete sync history entry %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sync history entry %d not found or already completed", id)
	}
	return nil
}

// ListHistory returns entries newest-first. limit is clamped to
// [1, HistoryMaxLimit]; 0 means HistoryDefaultLimit.
func (d *DB) ListHistory(ctx context.Context, limit int) ([]models.SyncHistoryEntry, error) {
	if limit <= 0 {
		limit = HistoryDefaultLimit
	}
	if limit > HistoryMaxLimit {
		limit = HistoryMaxLimit
	}

	query := `SELECT id, status, trigger_type, triggered_by, started_at, completed_at, duration_ms,
                     items_synced, items_failed, error_message, error_details, created_at
              FROM sync_history ORDER BY id DESC LIMIT ?`

	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync history: %w", err)
	}
	defer rows.Close()

	var entries []models.SyncHistoryEntry
	for rows.Next() {
		var entry models.SyncHistoryEntry
		var completedAt sql.NullTime
		var durationMs sql.NullInt64
		err := rows.Scan(
			&entry.ID,
			&entry.Status,
			&entry.TriggerType,
			&entry.TriggeredBy,
			&entry.StartedAt,
			&completedAt,
			&durationMs,
			&entry.ItemsSynced,
			&entry.ItemsFailed,
			&entry.ErrorMessage,
			&entry.ErrorDetails,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync history entry: %w", err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			entry.CompletedAt = &t
		}
		if durationMs.Valid {
			v := durationMs.Int64
			entry.DurationMs = &v
		}
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// CloseStuckEntries marks every row still `syncing` as an error. Called once
// at startup: only a crashed previous process can leave such rows behind.
func (d *DB) CloseStuckEntries(ctx context.Context, message string) (int64, error) {
	query := `UPDATE sync_history
              SET status = ?,
                  completed_at = ?,
                  duration_ms = CAST((julianday(?) - julianday(started_at)) * 86400000 AS INTEGER),
                  error_message = ?
              WHERE status = ? AND completed_at IS NULL`

	now := time.Now().UTC()
	result, err := d.db.ExecContext(ctx, query, models.SyncStatusError, now, now, message, models.SyncStatusSyncing)
	if err != nil {
		return 0, fmt.Errorf("failed to close stuck sync entries: %w", err)
	}
	return result.RowsAffected()
}
