package domain

import "time"

// Activity kinds observed on the trust network
const (
	KindReview  = "review"
	KindSlash   = "slash"
	KindUnvouch = "unvouch"
)

// ActivityRecord represents one observed reputation event against a relationship
type ActivityRecord struct {
	ID             int64
	RelationshipID int64
	ExternalID     string // network activity id, dedup key
	Kind           string
	AuthorKey      string
	AuthorName     string
	AuthorAddress  string
	Score          int
	Comment        string
	Negative       bool
	Alerted        bool
	EventAt        time.Time // from the source event, not ingestion
	CreatedAt      time.Time
}

// AlertType maps the activity kind to the alert type raised for it
func (a *ActivityRecord) AlertType() string {
	switch a.Kind {
	case KindSlash:
		return AlertSlash
	case KindUnvouch:
		return AlertUnvouch
	default:
		return AlertNegativeReview
	}
}
