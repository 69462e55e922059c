package repo

import (
	"context"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
)

// DefenseRepo is the defense repository interface
// Status moves are guarded so a row only transitions forward
type DefenseRepo interface {
	// Create persists a new defense, returning its id
	Create(ctx context.Context, def *domain.Defense) (int64, error)

	// GetByID gets a defense by id
	GetByID(ctx context.Context, id int64) (*domain.Defense, error)

	// GetActiveByActivity gets the PENDING/CONFIRMED defense for an activity
	// Returns domain.ErrNotFound when no active row exists
	GetActiveByActivity(ctx context.Context, activityID int64) (*domain.Defense, error)

	// MarkConfirmed transitions PENDING -> CONFIRMED
	MarkConfirmed(ctx context.Context, id int64) error

	// MarkPosted transitions CONFIRMED -> POSTED, recording the submission
	MarkPosted(ctx context.Context, id int64, score int, comment, externalID, txRef string) error

	// MarkFailed transitions CONFIRMED -> FAILED with the error detail
	MarkFailed(ctx context.Context, id int64, detail string) error

	// List lists defenses newest-first, optionally filtered by status
	List(ctx context.Context, status domain.DefenseStatus, limit int) ([]*domain.Defense, error)
}
