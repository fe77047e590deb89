package export

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trackmirror/internal/config"
	"trackmirror/internal/domain"
	"trackmirror/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeItemStore struct {
	items []models.BacklogItem
	err   error
}

func (f *fakeItemStore) UpsertFromSync(ctx context.Context, items []models.BacklogItem) error {
	return nil
}

func (f *fakeItemStore) ListItems(ctx context.Context) ([]models.BacklogItem, error) {
	return f.items, f.err
}

func (f *fakeItemStore) CountItems(ctx context.Context) (int, error) {
	return len(f.items), f.err
}

type fakeHistoryStore struct {
	history []models.SyncHistoryEntry
	err     error
}

func (f *fakeHistoryStore) CreateEntry(ctx context.Context, triggerType string, triggeredBy *string) (int64, error) {
	return 0, nil
}

func (f *fakeHistoryStore) CompleteEntry(ctx context.Context, id int64, completion domain.SyncCompletion) error {
	return nil
}

func (f *fakeHistoryStore) ListHistory(ctx context.Context, limit int) ([]models.SyncHistoryEntry, error) {
	return f.history, f.err
}

func (f *fakeHistoryStore) CloseStuckEntries(ctx context.Context, message string) (int64, error) {
	return 0, nil
}

func strPtr(s string) *string { return &s }

func TestExportBacklogWritesWorkbook(t *testing.T) {
	dir := t.TempDir()
	completed := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	duration := int64(1500)

	items := &fakeItemStore{items: []models.BacklogItem{
		{
			Identifier:    "ENG-1",
			Title:         "Fix login",
			Status:        "In Progress",
			StatusType:    "started",
			PriorityLabel: "High",
			AssigneeName:  strPtr("Jane Doe"),
			TeamKey:       strPtr("ENG"),
			Labels:        []string{"bug", "auth"},
			URL:           "https://linear.app/acme/issue/ENG-1",
			UpdatedAt:     "2026-02-01T09:30:00Z",
		},
		{
			Identifier:    "ENG-2",
			Title:         "Write docs",
			Status:        "Backlog",
			StatusType:    "backlog",
			PriorityLabel: "None",
			Labels:        []string{},
		},
	}}
	history := &fakeHistoryStore{history: []models.SyncHistoryEntry{
		{
			ID:          7,
			Status:      models.SyncStatusSuccess,
			TriggerType: models.TriggerManual,
			TriggeredBy: strPtr("ops"),
			StartedAt:   completed.Add(-2 * time.Second),
			CompletedAt: &completed,
			DurationMs:  &duration,
			ItemsSynced: 2,
		},
	}}

	exporter := NewExporter(config.ExportConfig{Path: dir}, items, history, zerolog.Nop())

	path, err := exporter.ExportBacklog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "backlog_export_"))
	assert.True(t, strings.HasSuffix(path, ".xlsx"))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.NotContains(t, f.GetSheetList(), "Sheet1")

	rows, err := f.GetRows(backlogSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Identifier", rows[0][0])
	assert.Equal(t, "ENG-1", rows[1][0])
	assert.Equal(t, "Jane Doe", rows[1][5])
	assert.Equal(t, "ENG", rows[1][7])
	assert.Equal(t, "bug, auth", rows[1][8])
	assert.Equal(t, "-", rows[2][5])

	histRows, err := f.GetRows(historySheet)
	require.NoError(t, err)
	require.Len(t, histRows, 2)
	assert.Equal(t, "7", histRows[1][0])
	assert.Equal(t, "success", histRows[1][3])
	assert.Equal(t, "ops", histRows[1][7])
}

func TestExportBacklogEmptyReplica(t *testing.T) {
	exporter := NewExporter(config.ExportConfig{Path: t.TempDir()}, &fakeItemStore{}, &fakeHistoryStore{}, zerolog.Nop())

	path, err := exporter.ExportBacklog(context.Background())
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(backlogSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExportBacklogStoreErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewExporter(config.ExportConfig{Path: dir}, &fakeItemStore{err: errors.New("db closed")}, &fakeHistoryStore{}, zerolog.Nop()).
		ExportBacklog(context.Background())
	require.ErrorContains(t, err, "listing backlog items")

	_, err = NewExporter(config.ExportConfig{Path: dir}, &fakeItemStore{}, &fakeHistoryStore{err: errors.New("db closed")}, zerolog.Nop()).
		ExportBacklog(context.Background())
	require.ErrorContains(t, err, "listing sync history")
}
