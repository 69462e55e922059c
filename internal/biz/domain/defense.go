package domain

import "time"

// DefenseStatus is the lifecycle state of a counter-review
type DefenseStatus string

const (
	DefensePending   DefenseStatus = "PENDING"
	DefenseConfirmed DefenseStatus = "CONFIRMED"
	DefensePosted    DefenseStatus = "POSTED"
	DefenseFailed    DefenseStatus = "FAILED"
)

// Active reports whether the defense still awaits posting
func (s DefenseStatus) Active() bool {
	return s == DefensePending || s == DefenseConfirmed
}

// Terminal reports whether the status allows no further transition
func (s DefenseStatus) Terminal() bool {
	return s == DefensePosted || s == DefenseFailed
}

// CanTransitionTo reports whether moving to next is a legal forward step
func (s DefenseStatus) CanTransitionTo(next DefenseStatus) bool {
	switch s {
	case DefensePending:
		return next == DefenseConfirmed
	case DefenseConfirmed:
		return next == DefensePosted || next == DefenseFailed
	default:
		return false
	}
}

// Defense represents a proposed or executed counter-review
type Defense struct {
	ID         int64
	ActivityID int64 // 0 for standalone custom posts
	TargetKey  string
	Score      int
	Comment    string
	Status     DefenseStatus
	ExternalID string // network review id once posted
	TxRef      string
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
