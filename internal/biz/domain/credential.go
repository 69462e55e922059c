package domain

import "time"

// ExpiringSoonWindow is the remaining lifetime below which a token is flagged
const ExpiringSoonWindow = time.Hour

// Credential is the persisted bearer session token and its decoded identity
type Credential struct {
	Token     string
	Subject   string
	SessionID string
	ExpiresAt time.Time
	UpdatedAt time.Time
}

// CredentialStatus is the watchdog's current view of the credential
type CredentialStatus struct {
	Configured     bool      `json:"configured"`
	Valid          bool      `json:"valid"`
	IsExpired      bool      `json:"is_expired"`
	IsExpiringSoon bool      `json:"is_expiring_soon"`
	ExpiresAt      time.Time `json:"expires_at"`
	SecondsLeft    int64     `json:"seconds_left"`
	Subject        string    `json:"subject"`
	SessionID      string    `json:"session_id"`
}

// StatusAt derives the watchdog view of the credential at the given instant
func (c *Credential) StatusAt(now time.Time) CredentialStatus {
	st := CredentialStatus{
		Configured: true,
		ExpiresAt:  c.ExpiresAt,
		Subject:    c.Subject,
		SessionID:  c.SessionID,
	}
	left := c.ExpiresAt.Sub(now)
	st.SecondsLeft = int64(left.Seconds())
	if left <= 0 {
		st.IsExpired = true
		st.SecondsLeft = 0
		return st
	}
	st.Valid = true
	if left < ExpiringSoonWindow {
		st.IsExpiringSoon = true
	}
	return st
}
