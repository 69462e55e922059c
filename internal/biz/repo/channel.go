package repo

import (
	"context"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
)

// ChannelConfigRepo persists per-channel enable flags
type ChannelConfigRepo interface {
	// Ensure inserts a default-enabled row for the channel if missing
	Ensure(ctx context.Context, name string) error

	// SetEnabled updates the enable flag
	SetEnabled(ctx context.Context, name string, enabled bool) error

	// IsEnabled reports the enable flag, defaulting to true for unknown channels
	IsEnabled(ctx context.Context, name string) (bool, error)

	// List lists all channel configs
	List(ctx context.Context) ([]*domain.ChannelConfig, error)
}
