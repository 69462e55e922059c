package repo

import (
	"context"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
)

// CredentialRepo persists the single current session credential
type CredentialRepo interface {
	// Save replaces the stored credential
	Save(ctx context.Context, cred *domain.Credential) error

	// Load gets the stored credential
	// Returns domain.ErrNotFound when none has been saved
	Load(ctx context.Context) (*domain.Credential, error)
}
