package repo

import (
	"context"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
)

// ActivityRepo is the activity-record repository interface
type ActivityRepo interface {
	// Create persists a new activity record, returning its id
	Create(ctx context.Context, rec *domain.ActivityRecord) (int64, error)

	// ExistsExternalID reports whether the dedup key is already stored
	ExistsExternalID(ctx context.Context, externalID string) (bool, error)

	// GetByID gets an activity record by id
	GetByID(ctx context.Context, id int64) (*domain.ActivityRecord, error)

	// MarkAlerted sets the alerted flag
	MarkAlerted(ctx context.Context, id int64) error

	// List lists records newest-first, optionally only negative ones
	List(ctx context.Context, onlyNegative bool, limit, offset int) ([]*domain.ActivityRecord, error)

	// Count returns the number of stored records
	Count(ctx context.Context) (int64, error)
}
