package repo

import (
	"context"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
)

// Notifier delivers formatted alerts over one notification transport
type Notifier interface {
	// Name identifies the channel ("telegram", "feishu", "webhook")
	Name() string

	// SendAlert delivers an alert and returns the channel-assigned message id
	// The alert id is generated before delivery so interactive channels can
	// embed it in their callback data
	SendAlert(ctx context.Context, alertID string, p *domain.AlertPayload) (string, error)

	// SendText delivers a plain operational notice
	SendText(ctx context.Context, text string) error
}
