package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"trackmirror/internal/models"
)

// upsertChunkSize bounds the number of rows in one INSERT statement.
const upsertChunkSize = 500

const itemColumns = `id, identifier, title, description, priority, priority_label, status, status_type,
       assignee_id, assignee_name, project_id, project_name, team_id, team_key, labels, url,
       sort_order, created_at, updated_at`

// UpsertFromSync replaces the whole replica with items inside one
// transaction: delete everything, then insert in fixed-size chunks with an
// ON CONFLICT upsert so duplicate ids within one sync cannot fail the run.
// An empty item list is a no-op so a degenerate zero-result fetch never
// wipes the table.
func (d *DB) UpsertFromSync(ctx context.Context, items []models.BacklogItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin sync transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM backlog_items`); err != nil {
		return fmt.Errorf("failed to clear backlog items: %w", err)
	}

	for start := 0; start < len(items); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(items) {
			end = len(items)
		}
		if err := insertItemChunk(ctx, tx, items[start:end]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sync transaction: %w", err)
	}
	return nil
}

func insertItemChunk(ctx context.Context, tx *sql.Tx, chunk []models.BacklogItem) error {
	placeholders := make([]string, 0, len(chunk))
	args := make([]any, 0, len(chunk)*19)

	for _, item := range chunk {
		labels, err := json.Marshal(item.Labels)
		if err != nil {
			return fmt.Errorf("failed to encode labels for item %s: %w", item.ID, err)
		}

		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			item.ID,
			item.Identifier,
			item.Title,
			item.Description,
			item.Priority,
			item.PriorityLabel,
			item.Status,
			item.StatusType,
			item.AssigneeID,
			item.AssigneeName,
			item.ProjectID,
			item.ProjectName,
			item.TeamID,
			item.TeamKey,
			string(labels),
			item.URL,
			item.SortOrder,
			item.CreatedAt,
			item.UpdatedAt,
		)
	}

	query := fmt.Sprintf(`INSERT INTO backlog_items (%s) VALUES %s
        ON CONFLICT(id) DO UPDATE SET
            identifier = excluded.identifier,
            title = excluded.title,
            description = excluded.description,
            priority = excluded.priority,
            priority_label = excluded.priority_label,
            status = excluded.status,
            status_type = excluded.status_type,
            assignee_id = excluded.assignee_id,
            assignee_name = excluded.assignee_name,
            project_id = excluded.project_id,
            project_name = excluded.project_name,
            team_id = excluded.team_id,
            team_key = excluded.team_key,
            labels = excluded.labels,
            url = excluded.url,
            sort_order = excluded.sort_order,
            created_at = excluded.created_at,
            updated_at = excluded.updated_at`,
		itemColumns, strings.Join(placeholders, ", "))

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert backlog item chunk: %w", err)
	}
	return nil
}

// ListItems returns the replica ordered the way the upstream board is.
func (d *DB) ListItems(ctx context.Context) ([]models.BacklogItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM backlog_items ORDER BY sort_order, identifier`, itemColumns)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list backlog items: %w", err)
	}
	defer rows.Close()

	var items []models.BacklogItem
	for rows.Next() {
		var item models.BacklogItem
		var labels string
		err := rows.Scan(
			&item.ID,
			&item.Identifier,
			&item.Title,
			&item.Description,
			&item.Priority,
			&item.PriorityLabel,
			&item.Status,
			&item.StatusType,
			&item.AssigneeID,
			&item.AssigneeName,
			&item.ProjectID,
			&item.ProjectName,
			&item.TeamID,
			&item.TeamKey,
			&labels,
			&item.URL,
			&item.SortOrder,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backlog item: %w", err)
		}
		if err := json.Unmarshal([]byte(labels), &item.Labels); err != nil {
			return nil, fmt.Errorf("failed to decode labels for item %s: %w", item.ID, err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// CountItems returns the replica row count.
func (d *DB) CountItems(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM backlog_items`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count backlog items: %w", err)
	}
	return count, nil
}
