package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
)

// CredentialUsecase tracks the bearer session token and its expiry
type CredentialUsecase struct {
	creds repo.CredentialRepo
	ethos repo.EthosRepo
	log   *logger.Logger

	mu       sync.RWMutex
	current  *domain.Credential
	lastWarn string // "", "soon" or "expired"; warnings fire on transitions only
}

// NewCredentialUsecase creates a credential usecase
func NewCredentialUsecase(creds repo.CredentialRepo, ethos repo.EthosRepo, log *logger.Logger) *CredentialUsecase {
	return &CredentialUsecase{
		creds: creds,
		ethos: ethos,
		log:   log.With("component", "credential"),
	}
}

// Bootstrap loads the startup token: the provided one when set, the persisted
// row otherwise. A bad startup token degrades to unconfigured instead of
// failing the process; writes stay blocked until a valid token arrives.
func (uc *CredentialUsecase) Bootstrap(ctx context.Context, envToken string) error {
	if envToken != "" {
		err := uc.UpdateToken(ctx, envToken)
		if err == nil {
			return nil
		}
		uc.log.Warn("startup token rejected, falling back to stored credential", "error", err)
	}

	cred, err := uc.creds.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			uc.log.Warn("no session token available; network writes are blocked until one is set")
			return nil
		}
		return fmt.Errorf("load stored credential: %w", err)
	}

	uc.mu.Lock()
	uc.current = cred
	uc.mu.Unlock()
	uc.ethos.SetToken(cred.Token)
	uc.log.Info("session token restored", "subject", cred.Subject, "expires_at", cred.ExpiresAt)
	return nil
}

// UpdateToken validates and swaps in a new bearer token.
// A token that fails to decode or is already expired leaves the previous
// credential in place and returns a typed error.
func (uc *CredentialUsecase) UpdateToken(ctx context.Context, token string) error {
	cred, err := decodeToken(token, time.Now())
	if err != nil {
		return err
	}

	uc.mu.Lock()
	uc.current = cred
	uc.lastWarn = ""
	uc.mu.Unlock()

	uc.ethos.SetToken(token)
	if err := uc.creds.Save(ctx, cred); err != nil {
		uc.log.Error("failed to persist credential", "error", err)
	}
	uc.log.Info("session token updated", "subject", cred.Subject, "expires_at", cred.ExpiresAt)
	return nil
}

// Status derives the current watchdog view of the credential
func (uc *CredentialUsecase) Status() domain.CredentialStatus {
	uc.mu.RLock()
	cred := uc.current
	uc.mu.RUnlock()

	if cred == nil {
		return domain.CredentialStatus{}
	}
	return cred.StatusAt(time.Now())
}

// Check returns the current status plus whether a warning should fire.
// Warnings are edge-triggered: once on entering the expiring-soon window and
// once more on expiry.
func (uc *CredentialUsecase) Check() (domain.CredentialStatus, bool) {
	st := uc.Status()

	level := ""
	switch {
	case st.IsExpired:
		level = "expired"
	case st.IsExpiringSoon:
		level = "soon"
	}

	uc.mu.Lock()
	fire := level != "" && level != uc.lastWarn
	uc.lastWarn = level
	uc.mu.Unlock()
	return st, fire
}

// RequireValid returns a typed error when network writes must be blocked
func (uc *CredentialUsecase) RequireValid() error {
	st := uc.Status()
	if !st.Configured {
		return fmt.Errorf("%w: no session token configured", domain.ErrCredentialInvalid)
	}
	if st.IsExpired {
		return fmt.Errorf("%w: expired at %s", domain.ErrCredentialExpired, st.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// decodeToken extracts claims without verifying the signature; the network
// publishes no verification key for its session tokens
func decodeToken(token string, now time.Time) (*domain.Credential, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCredentialInvalid, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing exp claim", domain.ErrCredentialInvalid)
	}
	if !exp.Time.After(now) {
		return nil, fmt.Errorf("%w: expired at %s", domain.ErrCredentialExpired, exp.Time.Format(time.RFC3339))
	}

	cred := &domain.Credential{
		Token:     token,
		ExpiresAt: exp.Time,
		UpdatedAt: now,
	}
	if sub, err := claims.GetSubject(); err == nil {
		cred.Subject = sub
	}
	if sid, ok := claims["sid"].(string); ok {
		cred.SessionID = sid
	} else if sid, ok := claims["sessionId"].(string); ok {
		cred.SessionID = sid
	}
	return cred, nil
}
