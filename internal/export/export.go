package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trackmirror/internal/config"
	"trackmirror/internal/domain"
	"trackmirror/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	backlogSheet = "Backlog"
	historySheet = "Sync History"
)

// Exporter writes the replica and its sync history to an XLSX workbook.
type Exporter struct {
	cfg     config.ExportConfig
	items   domain.ItemStore
	history domain.HistoryStore
	logger  zerolog.Logger
}

func NewExporter(cfg config.ExportConfig, items domain.ItemStore, history domain.HistoryStore, logger zerolog.Logger) *Exporter {
	return &Exporter{
		cfg:     cfg,
		items:   items,
		history: history,
		logger:  logger.With().Str("component", "export").Logger(),
	}
}

// ExportBacklog generates a workbook with the current backlog snapshot and
// recent sync history, and returns the path of the saved file.
func (e *Exporter) ExportBacklog(ctx context.Context) (string, error) {
	if err := os.MkdirAll(e.cfg.Path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	items, err := e.items.ListItems(ctx)
	if err != nil {
		return "", fmt.Errorf("error listing backlog items: %v", err)
	}

	history, err := e.history.ListHistory(ctx, 0)
	if err != nil {
		return "", fmt.Errorf("error listing sync history: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(backlogSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"Identifier", "Title", "Status", "Status Type", "Priority",
		"Assignee", "Project", "Team", "Labels", "URL", "Updated At",
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(backlogSheet, cell, header)
		_ = f.SetCellStyle(backlogSheet, cell, cell, headerStyle)
	}

	for i, item := range items {
		row := i + 2
		_ = f.SetCellValue(backlogSheet, fmt.Sprintf("A%d", row), item.Identifier)
		_ = f.SetCellValue(backlogSheet, fmt.Sprintf("B%d", row), item.Title)
		_ = f.SetCellValue(backlogSheet, fmt.Sprintf("C%d", row), item.Status)
		_ = f.SetCellValue(backlogSheet, fmt.Sprintf("D%d", row), item.StatusType)
		_ = f.SetCellValue(backlogSheet, fmt.Sprintf("E%d", row), item.PriorityLabel)
		_ = f.SetCellValue(backlogSheet, fmt.Sprintf("F%d", row), derefOr(item.AssigneeName, "-"))
		_ = f.SetCellValue(backlogSheet, fmt.Sprintf("G%d", row), derefOr(item.ProjectName, "-"))
		_ = f.SetCellValue(backlogSheet, fmt.Sprintf("H%d", row), derefOr(item.TeamKey, "-"))
		_ = f.SetCellValue(backlogSheet, fmt.Sprintf("I%d", row), strings.Join(item.Labels, ", "))
		_ = f.SetCellValue(backlogSheet, fmt.Sprintf("J%d", row), item.URL)
		_ = f.SetCellValue(backlogSheet, fmt.Sprintf("K%d", row), item.UpdatedAt)
	}

	_ = f.SetColWidth(backlogSheet, "A", "A", 12)
	_ = f.SetColWidth(backlogSheet, "B", "B", 50)
	_ = f.SetColWidth(backlogSheet, "C", "E", 14)
	_ = f.SetColWidth(backlogSheet, "F", "H", 20)
	_ = f.SetColWidth(backlogSheet, "I", "I", 30)
	_ = f.SetColWidth(backlogSheet, "J", "J", 40)
	_ = f.SetColWidth(backlogSheet, "K", "K", 22)

	e.writeHistorySheet(f, headerStyle, history)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("backlog_export_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.cfg.Path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("items", len(items)).Msg("Excel file created")
	return filePath, nil
}

func (e *Exporter) writeHistorySheet(f *excelize.File, headerStyle int, history []models.SyncHistoryEntry) {
	if _, err := f.NewSheet(historySheet); err != nil {
		return
	}

	headers := []string{
		"ID", "Started At", "Completed At", "Status", "Items Synced",
		"Items Failed", "Duration (ms)", "Triggered By", "Error",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(historySheet, cell, header)
		_ = f.SetCellStyle(historySheet, cell, cell, headerStyle)
	}

	for i, entry := range history {
		row := i + 2
		_ = f.SetCellValue(historySheet, fmt.Sprintf("A%d", row), entry.ID)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("B%d", row), entry.StartedAt.Format("02.01.2006 15:04:05"))
		if entry.CompletedAt != nil {
			_ = f.SetCellValue(historySheet, fmt.Sprintf("C%d", row), entry.CompletedAt.Format("02.01.2006 15:04:05"))
		}
		_ = f.SetCellValue(historySheet, fmt.Sprintf("D%d", row), entry.Status)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("E%d", row), entry.ItemsSynced)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("F%d", row), entry.ItemsFailed)
		if entry.DurationMs != nil {
			_ = f.SetCellValue(historySheet, fmt.Sprintf("G%d", row), *entry.DurationMs)
		}
		_ = f.SetCellValue(historySheet, fmt.Sprintf("H%d", row), derefOr(entry.TriggeredBy, "-"))
		_ = f.SetCellValue(historySheet, fmt.Sprintf("I%d", row), derefOr(entry.ErrorMessage, ""))
	}

	_ = f.SetColWidth(historySheet, "A", "A", 8)
	_ = f.SetColWidth(historySheet, "B", "C", 22)
	_ = f.SetColWidth(historySheet, "D", "G", 14)
	_ = f.SetColWidth(historySheet, "H", "H", 18)
	_ = f.SetColWidth(historySheet, "I", "I", 50)
}

func derefOr(val *string, fallback string) string {
	if val == nil || *val == "" {
		return fallback
	}
	return *val
}
