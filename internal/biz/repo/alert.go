package repo

import (
	"context"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
)

// AlertRepo is the alert repository interface
// Alert ids are generated by the dispatcher before delivery
type AlertRepo interface {
	// Create persists a dispatched alert
	Create(ctx context.Context, alert *domain.Alert) error

	// GetByID gets an alert by id
	GetByID(ctx context.Context, id string) (*domain.Alert, error)

	// UpdateStatus performs a guarded status transition
	// Returns domain.ErrNotFound or domain.ErrInvalidState on conflict
	UpdateStatus(ctx context.Context, id string, status domain.AlertStatus) error

	// List lists alerts newest-first, optionally filtered by status
	List(ctx context.Context, status domain.AlertStatus, limit int) ([]*domain.Alert, error)

	// ExpirePendingBefore expires pending alerts sent before the cutoff
	ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
