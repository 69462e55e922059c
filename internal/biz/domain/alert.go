package domain

import "time"

// Alert types as delivered to channels
const (
	AlertNegativeReview = "negative_review"
	AlertSlash          = "slash"
	AlertUnvouch        = "unvouch"
	AlertCredential     = "credential"
)

// AlertStatus is the delivery/response state of one alert
type AlertStatus string

const (
	AlertPending   AlertStatus = "PENDING"
	AlertConfirmed AlertStatus = "CONFIRMED"
	AlertIgnored   AlertStatus = "IGNORED"
	AlertExpired   AlertStatus = "EXPIRED"
)

// Terminal reports whether the status allows no further transition
func (s AlertStatus) Terminal() bool {
	return s == AlertConfirmed || s == AlertIgnored || s == AlertExpired
}

// CanTransitionTo reports whether moving to next is a legal forward step
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	return s == AlertPending && next != AlertPending
}

// Alert represents one notification delivered to one channel
type Alert struct {
	ID          string // generated before dispatch so channel callbacks can carry it
	ActivityID  int64
	Type        string
	Channel     string
	Status      AlertStatus
	MessageID   string // channel-assigned delivery id
	SentAt      time.Time
	RespondedAt time.Time
}

// AlertAction is an operator response arriving from an interactive channel
type AlertAction int

const (
	ActionUnknown AlertAction = iota
	ActionConfirm
	ActionEdit
	ActionIgnore
)

// ParseAlertAction maps a wire action name to its enum value
func ParseAlertAction(s string) AlertAction {
	switch s {
	case "confirm":
		return ActionConfirm
	case "edit":
		return ActionEdit
	case "ignore":
		return ActionIgnore
	default:
		return ActionUnknown
	}
}

func (a AlertAction) String() string {
	switch a {
	case ActionConfirm:
		return "confirm"
	case ActionEdit:
		return "edit"
	case ActionIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// SuggestedDefense is a proposed counter-review carried inside an alert
type SuggestedDefense struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

// AlertPayload is the channel-independent content of one alert
type AlertPayload struct {
	Type          string
	ActivityID    int64
	TargetName    string
	TargetKey     string
	TargetAddress string
	AuthorName    string
	AuthorKey     string
	AuthorAddress string
	Score         int
	Comment       string
	ProfileURL    string
	DashboardURL  string
	TriageNote    string
	Suggested     *SuggestedDefense // nil when auto-defense is off
}

// Title returns the headline for the payload's event kind
func (p *AlertPayload) Title() string {
	switch p.Type {
	case AlertSlash:
		return "🚨 Slash received"
	case AlertUnvouch:
		return "🔕 Vouch withdrawn"
	default:
		return "⚠️ Negative review received"
	}
}
