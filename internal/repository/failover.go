package repository

import (
	"context"
	"sync/atomic"
	"time"

	"trackmirror/internal/domain"
	"trackmirror/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStatusRepository serves status reads and writes from the primary
// (Redis) repository and falls back to the in-memory one when the primary
// errors. Recovery is probed at most once a minute.
type FailoverStatusRepository struct {
	primary  domain.StatusRepository
	fallback domain.StatusRepository
	logger   *zerolog.Logger
	isDown   atomic.Bool
	// Unix nanos of the last failed primary attempt. Atomic because HTTP
	// readers and the sync writer hit the repository concurrently.
	lastCheck atomic.Int64
}

func NewFailoverStatusRepository(primary, fallback domain.StatusRepository, logger *zerolog.Logger) *FailoverStatusRepository {
	return &FailoverStatusRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStatusRepository) markDown() {
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverStatusRepository) recoveryDue() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}

func (r *FailoverStatusRepository) GetStatus(ctx context.Context) (*models.SyncStatus, error) {
	if !r.isDown.Load() {
		status, err := r.primary.GetStatus(ctx)
		if err == nil {
			return status, nil
		}
		r.logger.Error().Err(err).Msg("Primary status repository failed, falling back to memory")
		r.markDown()
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && r.recoveryDue() {
		status, err := r.primary.GetStatus(ctx)
		if err == nil {
			r.isDown.Store(false)
			return status, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.GetStatus(ctx)
}

func (r *FailoverStatusRepository) SetStatus(ctx context.Context, status *models.SyncStatus) error {
	if !r.isDown.Load() {
		err := r.primary.SetStatus(ctx, status)
		if err == nil {
			// Mirror into memory so a later failover still sees the
			// latest snapshot.
			_ = r.fallback.SetStatus(ctx, status)
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary status repository failed, falling back to memory")
		r.markDown()
	}

	return r.fallback.SetStatus(ctx, status)
}
