package repo

import (
	"context"
	"encoding/json"
)

// VouchInfo is one vouch row returned by the network
type VouchInfo struct {
	ID         string           `json:"id"`
	SubjectKey string           `json:"subjectUserkey"`
	Profile    *EmbeddedProfile `json:"subjectProfile,omitempty"`
}

// EmbeddedProfile is the counterparty profile embedded in a vouch payload
type EmbeddedProfile struct {
	Name    string `json:"name"`
	Address string `json:"primaryAddress"`
	Avatar  string `json:"avatarUrl,omitempty"`
	Score   int    `json:"score,omitempty"`
}

// RawActivity is one activity payload as returned by the network.
// The score may be a signed number or one of "negative"/"neutral"/"positive",
// and the event timestamp may appear in any of three optional fields.
type RawActivity struct {
	ID            string           `json:"id,omitempty"`
	Kind          string           `json:"type"`
	AuthorKey     string           `json:"authorUserkey,omitempty"`
	AuthorName    string           `json:"authorName,omitempty"`
	AuthorAddress string           `json:"authorAddress,omitempty"`
	Score         json.RawMessage  `json:"score,omitempty"`
	Comment       string           `json:"comment,omitempty"`
	Timestamp     int64            `json:"timestamp,omitempty"`
	CreatedAt     string           `json:"createdAt,omitempty"`
	Data          *RawActivityData `json:"data,omitempty"`
}

// RawActivityData is the nested blob some activity payloads carry
type RawActivityData struct {
	Timestamp int64 `json:"timestamp,omitempty"`
}

// ProfileInfo is a profile looked up by userkey
type ProfileInfo struct {
	Name    string `json:"name"`
	Address string `json:"primaryAddress"`
	Avatar  string `json:"avatarUrl,omitempty"`
}

// ReviewReceipt is the result of posting a review
type ReviewReceipt struct {
	ReviewID string `json:"reviewId"`
	TxRef    string `json:"txHash"`
}

// EthosRepo is the trust-network API interface
type EthosRepo interface {
	// VouchesByVoucher lists active vouches placed by the given identity
	VouchesByVoucher(ctx context.Context, userkey string) ([]VouchInfo, error)

	// ReceivedActivities lists activities of the given kinds received by a counterparty
	ReceivedActivities(ctx context.Context, userkey string, kinds []string, limit, offset int) ([]RawActivity, error)

	// Profile looks up a profile; returns domain.ErrNotFound when absent
	Profile(ctx context.Context, userkey string) (*ProfileInfo, error)

	// Score looks up the current reputation score
	Score(ctx context.Context, userkey string) (int, error)

	// SubmitReview posts a review about the target
	SubmitReview(ctx context.Context, targetKey string, score int, comment string) (*ReviewReceipt, error)

	// Health probes API reachability
	Health(ctx context.Context) bool

	// SetToken swaps the bearer credential used for subsequent calls
	SetToken(token string)
}
