package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
)

func newCredentialFixture() (*CredentialUsecase, *memStore, *fakeEthos) {
	store := newMemStore()
	ethos := newFakeEthos()
	return NewCredentialUsecase(store, ethos, logger.Nop()), store, ethos
}

func TestCredentialUsecase_UpdateToken_Valid(t *testing.T) {
	uc, store, ethos := newCredentialFixture()
	token := testToken(t, time.Now().Add(24*time.Hour))

	if err := uc.UpdateToken(context.Background(), token); err != nil {
		t.Fatalf("Expected a valid token to be accepted: %v", err)
	}

	st := uc.Status()
	if !st.Configured || !st.Valid {
		t.Errorf("Expected a configured valid credential, got %+v", st)
	}
	if st.IsExpired || st.IsExpiringSoon {
		t.Errorf("Expected no expiry flags on a fresh token, got %+v", st)
	}
	if st.Subject != "0xoperator" || st.SessionID != "sess-test" {
		t.Errorf("Expected claims to be extracted, got %+v", st)
	}
	if ethos.token != token {
		t.Error("Expected the token to be handed to the network client")
	}
	saved, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Expected the credential to be persisted: %v", err)
	}
	if saved.Token != token {
		t.Error("Expected the persisted row to carry the token")
	}
	if err := uc.RequireValid(); err != nil {
		t.Errorf("Expected RequireValid to pass, got %v", err)
	}
}

func TestCredentialUsecase_UpdateToken_RejectsExpired(t *testing.T) {
	uc, _, _ := newCredentialFixture()
	if err := uc.UpdateToken(context.Background(), testToken(t, time.Now().Add(24*time.Hour))); err != nil {
		t.Fatalf("Failed to seed credential: %v", err)
	}

	err := uc.UpdateToken(context.Background(), testToken(t, time.Now().Add(-10*time.Second)))
	if !errors.Is(err, domain.ErrCredentialExpired) {
		t.Errorf("Expected ErrCredentialExpired, got %v", err)
	}
	if st := uc.Status(); !st.Valid {
		t.Error("Expected the previous credential to stay in place")
	}
}

func TestCredentialUsecase_UpdateToken_RejectsGarbage(t *testing.T) {
	uc, _, _ := newCredentialFixture()
	if err := uc.UpdateToken(context.Background(), testToken(t, time.Now().Add(24*time.Hour))); err != nil {
		t.Fatalf("Failed to seed credential: %v", err)
	}

	err := uc.UpdateToken(context.Background(), "not-a-jwt")
	if !errors.Is(err, domain.ErrCredentialInvalid) {
		t.Errorf("Expected ErrCredentialInvalid, got %v", err)
	}
	if st := uc.Status(); !st.Valid {
		t.Error("Expected the previous credential to stay in place")
	}
}

func TestCredentialUsecase_Status_ExpiringSoon(t *testing.T) {
	uc, _, _ := newCredentialFixture()
	if err := uc.UpdateToken(context.Background(), testToken(t, time.Now().Add(30*time.Minute))); err != nil {
		t.Fatalf("Expected a not-yet-expired token to be accepted: %v", err)
	}

	st := uc.Status()
	if !st.Valid {
		t.Error("Expected an expiring-soon credential to still be valid")
	}
	if !st.IsExpiringSoon {
		t.Error("Expected the expiring-soon flag inside the warning window")
	}
	if st.IsExpired {
		t.Error("Expected the credential to not be expired yet")
	}
	if st.SecondsLeft <= 0 || st.SecondsLeft > 30*60 {
		t.Errorf("Expected seconds left within the half-hour window, got %d", st.SecondsLeft)
	}
}

func TestCredentialUsecase_Status_Expired(t *testing.T) {
	uc, _, _ := newCredentialFixture()
	uc.mu.Lock()
	uc.current = &domain.Credential{Token: "stale", ExpiresAt: time.Now().Add(-10 * time.Second)}
	uc.mu.Unlock()

	st := uc.Status()
	if !st.Configured {
		t.Error("Expected an expired credential to still count as configured")
	}
	if st.Valid {
		t.Error("Expected an expired credential to be invalid")
	}
	if !st.IsExpired {
		t.Error("Expected the expired flag")
	}
	if st.SecondsLeft != 0 {
		t.Errorf("Expected zero seconds left, got %d", st.SecondsLeft)
	}
	if err := uc.RequireValid(); !errors.Is(err, domain.ErrCredentialExpired) {
		t.Errorf("Expected RequireValid to report expiry, got %v", err)
	}
}

func TestCredentialUsecase_Status_Unconfigured(t *testing.T) {
	uc, _, _ := newCredentialFixture()

	st := uc.Status()
	if st.Configured || st.Valid {
		t.Errorf("Expected an empty status without a token, got %+v", st)
	}
	if err := uc.RequireValid(); !errors.Is(err, domain.ErrCredentialInvalid) {
		t.Errorf("Expected RequireValid to report the missing token, got %v", err)
	}
}

func TestCredentialUsecase_Check_EdgeTriggered(t *testing.T) {
	uc, _, _ := newCredentialFixture()
	if err := uc.UpdateToken(context.Background(), testToken(t, time.Now().Add(24*time.Hour))); err != nil {
		t.Fatalf("Failed to seed credential: %v", err)
	}

	if _, fire := uc.Check(); fire {
		t.Error("Expected no warning for a healthy credential")
	}

	uc.mu.Lock()
	uc.current.ExpiresAt = time.Now().Add(30 * time.Minute)
	uc.mu.Unlock()
	if st, fire := uc.Check(); !fire || !st.IsExpiringSoon {
		t.Error("Expected a warning on entering the expiring-soon window")
	}
	if _, fire := uc.Check(); fire {
		t.Error("Expected the expiring-soon warning to fire only once")
	}

	uc.mu.Lock()
	uc.current.ExpiresAt = time.Now().Add(-time.Second)
	uc.mu.Unlock()
	if st, fire := uc.Check(); !fire || !st.IsExpired {
		t.Error("Expected a second warning on expiry")
	}
	if _, fire := uc.Check(); fire {
		t.Error("Expected the expiry warning to fire only once")
	}

	if err := uc.UpdateToken(context.Background(), testToken(t, time.Now().Add(24*time.Hour))); err != nil {
		t.Fatalf("Failed to refresh credential: %v", err)
	}
	uc.mu.Lock()
	uc.current.ExpiresAt = time.Now().Add(30 * time.Minute)
	uc.mu.Unlock()
	if _, fire := uc.Check(); !fire {
		t.Error("Expected the warning cycle to reset after a token refresh")
	}
}

func TestCredentialUsecase_Bootstrap_PrefersProvidedToken(t *testing.T) {
	uc, _, ethos := newCredentialFixture()
	token := testToken(t, time.Now().Add(24*time.Hour))

	if err := uc.Bootstrap(context.Background(), token); err != nil {
		t.Fatalf("Expected bootstrap to succeed: %v", err)
	}
	if st := uc.Status(); !st.Valid {
		t.Error("Expected the provided token to be active")
	}
	if ethos.token != token {
		t.Error("Expected the provided token to reach the network client")
	}
}

func TestCredentialUsecase_Bootstrap_FallsBackToStoredRow(t *testing.T) {
	uc, store, ethos := newCredentialFixture()
	stored := &domain.Credential{Token: "stored-token", Subject: "0xoperator", ExpiresAt: time.Now().Add(time.Hour)}
	if err := store.Save(context.Background(), stored); err != nil {
		t.Fatalf("Failed to seed stored credential: %v", err)
	}

	if err := uc.Bootstrap(context.Background(), "garbage"); err != nil {
		t.Fatalf("Expected bootstrap to degrade to the stored row: %v", err)
	}
	if st := uc.Status(); !st.Configured {
		t.Error("Expected the stored credential to be restored")
	}
	if ethos.token != "stored-token" {
		t.Error("Expected the stored token to reach the network client")
	}
}

func TestCredentialUsecase_Bootstrap_NoTokenAvailable(t *testing.T) {
	uc, _, _ := newCredentialFixture()

	if err := uc.Bootstrap(context.Background(), ""); err != nil {
		t.Fatalf("Expected a missing token to not fail startup: %v", err)
	}
	if st := uc.Status(); st.Configured {
		t.Error("Expected no credential to be configured")
	}
}
