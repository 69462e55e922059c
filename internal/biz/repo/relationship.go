package repo

import (
	"context"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
)

// RelationshipRepo is the tracked-relationship repository interface
// Rows are upserted every cycle and deactivated, never deleted
type RelationshipRepo interface {
	// Upsert creates or refreshes a relationship keyed by userkey, returning its id
	Upsert(ctx context.Context, rel *domain.Relationship) (int64, error)

	// GetByUserkey gets a relationship by its network userkey
	GetByUserkey(ctx context.Context, userkey string) (*domain.Relationship, error)

	// List lists relationships, optionally only active ones
	List(ctx context.Context, onlyActive bool) ([]*domain.Relationship, error)

	// Deactivate clears the active flag
	Deactivate(ctx context.Context, id int64) error
}
