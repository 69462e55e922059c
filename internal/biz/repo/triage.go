package repo

import (
	"context"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
)

// TriageRepo is the alert triage annotation interface
type TriageRepo interface {
	// Annotate returns a one-line severity note for an alert payload
	Annotate(ctx context.Context, p *domain.AlertPayload) (string, error)
}
