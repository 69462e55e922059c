package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
)

// msThreshold separates second-precision unix timestamps from millisecond ones
const msThreshold = int64(10_000_000_000)

// normalizedActivity is the unambiguous form of one raw network activity
type normalizedActivity struct {
	ExternalID string
	Kind       string
	Score      int
	Negative   bool
	EventAt    time.Time
}

// normalizeActivity reduces a multi-shape raw payload to typed values.
// Fallback rules: a missing id becomes "<kind>-<eventMillis>"; an enumerated
// score maps to -1/0/+1; the event instant comes from the first usable of
// unix timestamp (seconds below the 10-billion threshold upscale to millis),
// ISO createdAt, nested data timestamp, ingestion time.
func normalizeActivity(raw repo.RawActivity, ingestedAt time.Time) normalizedActivity {
	kind := raw.Kind
	if kind == "" {
		kind = domain.KindReview
	}
	score := normalizeScore(raw.Score)
	eventAt := normalizeEventTime(raw, ingestedAt)

	externalID := raw.ID
	if externalID == "" {
		externalID = fmt.Sprintf("%s-%d", kind, eventAt.UnixMilli())
	}

	return normalizedActivity{
		ExternalID: externalID,
		Kind:       kind,
		Score:      score,
		Negative:   score < 0 || kind == domain.KindSlash,
		EventAt:    eventAt,
	}
}

// normalizeScore unifies numeric and enumerated sentiment values
func normalizeScore(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	if strings.HasPrefix(strings.TrimSpace(string(raw)), `"`) {
		var label string
		if err := json.Unmarshal(raw, &label); err != nil {
			return 0
		}
		switch strings.ToLower(strings.TrimSpace(label)) {
		case "negative":
			return -1
		case "positive":
			return 1
		case "neutral":
			return 0
		}
		// some payloads quote the number itself
		if n, err := strconv.Atoi(strings.TrimSpace(label)); err == nil {
			return n
		}
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	// round away from zero so fractional sentiment keeps its sign
	switch {
	case n > 0:
		return int(math.Ceil(n))
	case n < 0:
		return int(math.Floor(n))
	}
	return 0
}

// normalizeEventTime resolves the event instant via the documented fallbacks
func normalizeEventTime(raw repo.RawActivity, ingestedAt time.Time) time.Time {
	if raw.Timestamp > 0 {
		return time.UnixMilli(upscaleMillis(raw.Timestamp))
	}
	if raw.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, raw.CreatedAt); err == nil {
			return t
		}
	}
	if raw.Data != nil && raw.Data.Timestamp > 0 {
		return time.UnixMilli(upscaleMillis(raw.Data.Timestamp))
	}
	return ingestedAt
}

// upscaleMillis treats values below the threshold as seconds
func upscaleMillis(ts int64) int64 {
	if ts < msThreshold {
		return ts * 1000
	}
	return ts
}
