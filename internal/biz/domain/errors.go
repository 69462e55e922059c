package domain

import "errors"

// Sentinel errors shared across the pipeline. Callers match with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state transition")
	ErrCycleRunning      = errors.New("monitor cycle already running")
	ErrCredentialExpired = errors.New("session token expired")
	ErrCredentialInvalid = errors.New("session token invalid")
)
