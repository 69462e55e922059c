package repo

import (
	"context"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
)

// CycleRepo is the append-only cycle audit log interface
type CycleRepo interface {
	// Append persists one cycle log row
	Append(ctx context.Context, log *domain.CycleLog) (int64, error)

	// Latest gets the most recent cycle log
	// Returns domain.ErrNotFound when no cycle has run yet
	Latest(ctx context.Context) (*domain.CycleLog, error)

	// List lists cycle logs newest-first
	List(ctx context.Context, limit int) ([]*domain.CycleLog, error)

	// PruneBefore deletes logs older than the cutoff
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
