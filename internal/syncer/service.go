package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"trackmirror/internal/domain"
	"trackmirror/internal/events"
	"trackmirror/internal/metrics"
	"trackmirror/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrSyncInProgress is returned when RunSync is called while a run is
// already in flight. It is the only sync-related error a caller ever sees;
// run failures are recorded in status and history instead.
var ErrSyncInProgress = errors.New("sync already in progress")

// Service orchestrates one sync cycle: history entry, paginated fetch
// through the guarded client, transform, transactional persistence, and the
// final status/history update. It is the single writer of the status
// repository.
type Service struct {
	client      domain.UpstreamClient
	transformer *Transformer
	history     domain.HistoryStore
	items       domain.ItemStore
	status      domain.StatusRepository
	events      domain.EventPublisher
	logger      zerolog.Logger

	mu       sync.Mutex
	inFlight bool
	wg       sync.WaitGroup
}

func NewService(
	client domain.UpstreamClient,
	transformer *Transformer,
	history domain.HistoryStore,
	items domain.ItemStore,
	status domain.StatusRepository,
	bus domain.EventPublisher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		client:      client,
		transformer: transformer,
		history:     history,
		items:       items,
		status:      status,
		events:      bus,
		logger:      logger.With().Str("component", "sync-service").Logger(),
	}
}

// Initialize resets the status snapshot to idle and closes history rows a
// crashed previous process left in the syncing state.
func (s *Service) Initialize(ctx context.Context) error {
	closed, err := s.history.CloseStuckEntries(ctx, "Sync interrupted by process restart")
	if err != nil {
		return fmt.Errorf("close stuck sync entries: %w", err)
	}
	if closed > 0 {
		s.logger.Warn().Int64("entries", closed).Msg("closed sync entries left behind by a previous process")
	}
	return s.status.SetStatus(ctx, models.IdleStatus())
}

// GetStatus returns the snapshot of the most recent sync.
func (s *Service) GetStatus(ctx context.Context) (*models.SyncStatus, error) {
	return s.status.GetStatus(ctx)
}

// ListHistory returns recent sync attempts, newest first.
func (s *Service) ListHistory(ctx context.Context, limit int) ([]models.SyncHistoryEntry, error) {
	return s.history.ListHistory(ctx, limit)
}

// RunSync starts one sync run. It rejects a concurrent invocation with
// ErrSyncInProgress before any history row is created, opens the history
// entry, flips the status to syncing, and then runs the cycle in the
// background: callers never block on completion and never see run errors.
func (s *Service) RunSync(ctx context.Context, triggerType string, triggeredBy *string) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrSyncInProgress
	}
	s.inFlight = true
	s.mu.Unlock()

	runID := uuid.NewString()
	logger := s.logger.With().Str("run_id", runID).Str("trigger", triggerType).Logger()

	entryID, err := s.history.CreateEntry(ctx, triggerType, triggeredBy)
	if err != nil {
		s.release()
		return fmt.Errorf("create sync history entry: %w", err)
	}

	s.markSyncing(ctx, logger)
	_ = s.events.PublishJSON(events.EventSyncStarted, events.SyncEventPayload{RunID: runID, TriggerType: triggerType})
	logger.Info().Int64("entry_id", entryID).Msg("sync started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release()
		// Detached from the trigger's context: a completed HTTP request
		// must not cancel an in-flight run.
		s.execute(context.Background(), entryID, runID, triggerType, logger)
	}()

	return nil
}

// Wait blocks until the in-flight run, if any, has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) release() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

// markSyncing flips only the status field so readers keep seeing the
// previous run's counts while the next one is in flight.
func (s *Service) markSyncing(ctx context.Context, logger zerolog.Logger) {
	current, err := s.status.GetStatus(ctx)
	if err != nil || current == nil {
		current = models.IdleStatus()
	}
	current.Status = models.SyncStatusSyncing
	if err := s.status.SetStatus(ctx, current); err != nil {
		logger.Error().Err(err).Msg("failed to update status snapshot")
	}
}

// runOutcome is the terminal result of one cycle.
type runOutcome struct {
	status       string
	itemsSynced  int
	itemsFailed  int
	errorCode    string
	errorMessage string
	errorDetails *string
}

func (s *Service) execute(ctx context.Context, entryID int64, runID, triggerType string, logger zerolog.Logger) {
	started := time.Now()

	items, failed, lastItemErr, fetchErr := s.collect(ctx, logger)
	outcome := s.resolveOutcome(ctx, items, failed, lastItemErr, fetchErr, runID, logger)

	durationMs := time.Since(started).Milliseconds()
	s.finalize(ctx, entryID, runID, triggerType, durationMs, outcome, logger)
}

// collect walks every upstream page, transforming as pages arrive. A fetch
// failure aborts the walk; per-item transform failures only accumulate.
func (s *Service) collect(ctx context.Context, logger zerolog.Logger) (items []models.BacklogItem, failed int, lastItemErr, fetchErr error) {
	cursor := ""
	for page := 1; ; page++ {
		pageData, err := s.client.Issues(ctx, cursor)
		if err != nil {
			return items, failed, lastItemErr, err
		}

		results := s.transformer.TransformIssues(ctx, pageData.Nodes)
		for _, result := range results {
			if result.Err != nil {
				failed++
				lastItemErr = result.Err
				continue
			}
			items = append(items, *result.Item)
		}

		logger.Debug().Int("page", page).Int("page_items", len(pageData.Nodes)).Msg("page transformed")
		if !pageData.HasNextPage {
			return items, failed, lastItemErr, nil
		}
		cursor = pageData.EndCursor
	}
}

// resolveOutcome decides the terminal status. A fetch failure means no
// persistence at all, so the previous replica survives; transform failures
// downgrade a clean persist to partial.
func (s *Service) resolveOutcome(ctx context.Context, items []models.BacklogItem, failed int, lastItemErr, fetchErr error, runID string, logger zerolog.Logger) runOutcome {
	if fetchErr != nil {
		classified := Classify(fetchErr)
		logger.Error().Err(fetchErr).Str("error_code", classified.Code).Msg("sync failed before persistence")
		return runOutcome{
			status:       models.SyncStatusError,
			itemsFailed:  failed,
			errorCode:    classified.Code,
			errorMessage: classified.Message,
			errorDetails: s.encodeDetails(runID, classified, failed),
		}
	}

	if err := s.items.UpsertFromSync(ctx, items); err != nil {
		classified := Classify(err)
		logger.Error().Err(err).Str("error_code", classified.Code).Msg("failed to persist backlog items")
		return runOutcome{
			status:       models.SyncStatusError,
			itemsFailed:  failed + len(items),
			errorCode:    classified.Code,
			errorMessage: classified.Message,
			errorDetails: s.encodeDetails(runID, classified, failed+len(items)),
		}
	}

	if failed > 0 {
		classified := ClassifiedError{
			Code:    models.ErrCodePartialSuccess,
			Message: fmt.Sprintf("%d of %d items failed to transform", failed, failed+len(items)),
		}
		details := detailsPayload{
			RunID:       runID,
			Code:        models.ErrCodeTransformFail,
			FailedItems: failed,
			LastError:   Classify(lastItemErr).Message,
		}
		return runOutcome{
			status:       models.SyncStatusPartial,
			itemsSynced:  len(items),
			itemsFailed:  failed,
			errorCode:    classified.Code,
			errorMessage: classified.Message,
			errorDetails: encodeDetailsPayload(details),
		}
	}

	return runOutcome{status: models.SyncStatusSuccess, itemsSynced: len(items)}
}

type detailsPayload struct {
	RunID       string `json:"runId"`
	Code        string `json:"code"`
	FailedItems int    `json:"failedItems,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

func (s *Service) encodeDetails(runID string, classified ClassifiedError, failedItems int) *string {
	return encodeDetailsPayload(detailsPayload{
		RunID:       runID,
		Code:        classified.Code,
		FailedItems: failedItems,
	})
}

func encodeDetailsPayload(payload detailsPayload) *string {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	encoded := string(raw)
	return &encoded
}

// finalize closes the history entry and refreshes the status snapshot
// exactly once per run, success or failure.
func (s *Service) finalize(ctx context.Context, entryID int64, runID, triggerType string, durationMs int64, outcome runOutcome, logger zerolog.Logger) {
	completion := domain.SyncCompletion{
		Status:      outcome.status,
		DurationMs:  durationMs,
		ItemsSynced: outcome.itemsSynced,
		ItemsFailed: outcome.itemsFailed,
	}
	if outcome.errorMessage != "" {
		msg := outcome.errorMessage
		completion.ErrorMessage = &msg
	}
	completion.ErrorDetails = outcome.errorDetails

	if err := s.history.CompleteEntry(ctx, entryID, completion); err != nil {
		logger.Error().Err(err).Int64("entry_id", entryID).Msg("failed to complete sync history entry")
	}

	s.refreshStatus(ctx, outcome, logger)
	metrics.ObserveSyncRun(outcome.status, triggerType, durationMs, outcome.itemsSynced, outcome.itemsFailed)

	payload := events.SyncEventPayload{
		RunID:        runID,
		TriggerType:  triggerType,
		Status:       outcome.status,
		ItemsSynced:  outcome.itemsSynced,
		ItemsFailed:  outcome.itemsFailed,
		DurationMs:   durationMs,
		ErrorCode:    outcome.errorCode,
		ErrorMessage: outcome.errorMessage,
	}
	if outcome.status == models.SyncStatusSuccess {
		_ = s.events.PublishJSON(events.EventSyncCompleted, payload)
		logger.Info().Int("items_synced", outcome.itemsSynced).Int64("duration_ms", durationMs).Msg("sync completed")
		return
	}
	_ = s.events.PublishJSON(events.EventSyncFailed, payload)
	logger.Warn().
		Str("status", outcome.status).
		Str("error_code", outcome.errorCode).
		Int("items_synced", outcome.itemsSynced).
		Int("items_failed", outcome.itemsFailed).
		Int64("duration_ms", durationMs).
		Msg("sync finished with errors")
}

func (s *Service) refreshStatus(ctx context.Context, outcome runOutcome, logger zerolog.Logger) {
	previous, err := s.status.GetStatus(ctx)
	if err != nil || previous == nil {
		previous = models.IdleStatus()
	}

	itemCount, err := s.items.CountItems(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to count replica items")
		itemCount = previous.ItemCount
	}

	status := &models.SyncStatus{
		Status:       outcome.status,
		LastSyncedAt: previous.LastSyncedAt,
		ItemCount:    itemCount,
		ItemsSynced:  outcome.itemsSynced,
		ItemsFailed:  outcome.itemsFailed,
		ErrorCode:    outcome.errorCode,
		ErrorMessage: outcome.errorMessage,
	}
	// lastSyncedAt marks the last run that actually refreshed the replica.
	if outcome.status == models.SyncStatusSuccess || outcome.status == models.SyncStatusPartial {
		now := time.Now()
		status.LastSyncedAt = &now
	}

	if err := s.status.SetStatus(ctx, status); err != nil {
		logger.Error().Err(err).Msg("failed to update status snapshot")
	}
}
