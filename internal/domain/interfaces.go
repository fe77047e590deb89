package domain

import (
	"context"

	"trackmirror/internal/linear"
	"trackmirror/internal/models"
)

// UpstreamClient is the paginated backlog source. Relation getters resolve
// the lazy edges of one issue; all of them may legitimately return nil.
type UpstreamClient interface {
	Issues(ctx context.Context, after string) (*linear.IssuePage, error)
	IssueState(ctx context.Context, issueID string) (*linear.WorkflowState, error)
	IssueAssignee(ctx context.Context, issueID string) (*linear.User, error)
	IssueProject(ctx context.Context, issueID string) (*linear.Project, error)
	IssueTeam(ctx context.Context, issueID string) (*linear.Team, error)
	IssueLabels(ctx context.Context, issueID string) ([]linear.Label, error)
}

// SyncCompletion carries the one-and-only terminal update of a history row.
type SyncCompletion struct {
	Status       string
	DurationMs   int64
	ItemsSynced  int
	ItemsFailed  int
	ErrorMessage *string
	ErrorDetails *string
}

// HistoryStore is the append/update log of sync attempts. Entries are
// created before any upstream call and completed exactly once; nothing is
// ever deleted here.
type HistoryStore interface {
	CreateEntry(ctx context.Context, triggerType string, triggeredBy *string) (int64, error)
	CompleteEntry(ctx context.Context, id int64, completion SyncCompletion) error
	ListHistory(ctx context.Context, limit int) ([]models.SyncHistoryEntry, error)
	CloseStuckEntries(ctx context.Context, message string) (int64, error)
}

// ItemStore owns the backlog replica table.
type ItemStore interface {
	UpsertFromSync(ctx context.Context, items []models.BacklogItem) error
	ListItems(ctx context.Context) ([]models.BacklogItem, error)
	CountItems(ctx context.Context) (int, error)
}

// StatusRepository holds the process-wide snapshot of the most recent sync.
// Only the sync service writes it.
type StatusRepository interface {
	GetStatus(ctx context.Context) (*models.SyncStatus, error)
	SetStatus(ctx context.Context, status *models.SyncStatus) error
}

// CronRunner abstracts the cron primitive so scheduler logic is testable
// without a real timer.
type CronRunner interface {
	Validate(expr string) error
	Schedule(expr string, fn func()) error
	Stop()
}

// SyncTrigger is what the HTTP layer needs from the sync service.
type SyncTrigger interface {
	RunSync(ctx context.Context, triggerType string, triggeredBy *string) error
	GetStatus(ctx context.Context) (*models.SyncStatus, error)
	ListHistory(ctx context.Context, limit int) ([]models.SyncHistoryEntry, error)
}

// EventPublisher fans sync lifecycle events out to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
