package repository

import (
	"context"
	"sync"

	"trackmirror/internal/models"
)

// MemoryStatusRepository keeps the sync status snapshot in process memory.
// It serves as the failover target when Redis is unavailable and as the
// only repository when Redis is not configured.
type MemoryStatusRepository struct {
	mu     sync.RWMutex
	status *models.SyncStatus
}

func NewMemoryStatusRepository() *MemoryStatusRepository {
	return &MemoryStatusRepository{}
}

func (r *MemoryStatusRepository) GetStatus(ctx context.Context) (*models.SyncStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.status == nil {
		return nil, nil
	}
	copied := *r.status
	return &copied, nil
}

func (r *MemoryStatusRepository) SetStatus(ctx context.Context, status *models.SyncStatus) error {
	copied := *status
	r.mu.Lock()
	r.status = &copied
	r.mu.Unlock()
	return nil
}
