package domain

import (
	"testing"
	"time"
)

func TestCredential_StatusAt_Expired(t *testing.T) {
	now := time.Now()
	cred := &Credential{
		Token:     "token",
		Subject:   "0xabc",
		ExpiresAt: now.Add(-10 * time.Second),
	}

	st := cred.StatusAt(now)

	if !st.IsExpired {
		t.Error("Expected expired flag")
	}
	if st.Valid {
		t.Error("Expected invalid")
	}
	if st.SecondsLeft != 0 {
		t.Errorf("Expected 0 seconds left, got %d", st.SecondsLeft)
	}
}

func TestCredential_StatusAt_ExpiringSoon(t *testing.T) {
	now := time.Now()
	cred := &Credential{
		Token:     "token",
		ExpiresAt: now.Add(30 * time.Minute),
	}

	st := cred.StatusAt(now)

	if !st.Valid || st.IsExpired {
		t.Error("Expected valid, not expired")
	}
	if !st.IsExpiringSoon {
		t.Error("Expected expiring-soon flag inside the 1h window")
	}
	if st.SecondsLeft < 29*60 || st.SecondsLeft > 30*60 {
		t.Errorf("Unexpected seconds left: %d", st.SecondsLeft)
	}
}

func TestCredential_StatusAt_Healthy(t *testing.T) {
	now := time.Now()
	cred := &Credential{
		Token:     "token",
		ExpiresAt: now.Add(48 * time.Hour),
	}

	st := cred.StatusAt(now)

	if !st.Valid || st.IsExpired || st.IsExpiringSoon {
		t.Error("Expected a healthy credential with no warning flags")
	}
}
