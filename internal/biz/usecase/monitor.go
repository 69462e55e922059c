package usecase

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
)

// MonitorConfig holds ingestion settings
type MonitorConfig struct {
	OperatorKey      string
	AutoDefense      bool
	AutoDefenseScore int
	ProfileBaseURL   string
	DashboardBaseURL string
	ActivityPageSize int
	AlertRetention   time.Duration // pending alerts older than this expire
	LogRetention     time.Duration // cycle logs older than this are pruned
}

// DefaultMonitorConfig returns the default ingestion settings
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		AutoDefense:      true,
		AutoDefenseScore: 3,
		ProfileBaseURL:   "https://app.ethos.network/profile",
		ActivityPageSize: 50,
		AlertRetention:   7 * 24 * time.Hour,
		LogRetention:     90 * 24 * time.Hour,
	}
}

// MonitorUsecase runs one monitor cycle over all tracked relationships
type MonitorUsecase struct {
	ethos         repo.EthosRepo
	relationships repo.RelationshipRepo
	activities    repo.ActivityRepo
	defenses      repo.DefenseRepo
	alerts        repo.AlertRepo
	cycles        repo.CycleRepo
	dispatch      *DispatchUsecase
	defense       *DefenseUsecase
	cfg           MonitorConfig
	log           *logger.Logger
	running       atomic.Bool
}

// NewMonitorUsecase creates a monitor usecase
func NewMonitorUsecase(
	ethos repo.EthosRepo,
	relationships repo.RelationshipRepo,
	activities repo.ActivityRepo,
	defenses repo.DefenseRepo,
	alerts repo.AlertRepo,
	cycles repo.CycleRepo,
	dispatch *DispatchUsecase,
	defense *DefenseUsecase,
	cfg MonitorConfig,
	log *logger.Logger,
) *MonitorUsecase {
	if cfg.ActivityPageSize <= 0 {
		cfg.ActivityPageSize = DefaultMonitorConfig().ActivityPageSize
	}
	return &MonitorUsecase{
		ethos:         ethos,
		relationships: relationships,
		activities:    activities,
		defenses:      defenses,
		alerts:        alerts,
		cycles:        cycles,
		dispatch:      dispatch,
		defense:       defense,
		cfg:           cfg,
		log:           log.With("component", "monitor"),
	}
}

// Running reports whether a cycle is currently in flight
func (uc *MonitorUsecase) Running() bool {
	return uc.running.Load()
}

// RunCycle executes one monitor cycle guarded by a single-flight latch.
// A trigger observed while a cycle is in flight returns immediately with
// zero counts and an "already running" notice; no cycle log is written for
// the rejected trigger.
func (uc *MonitorUsecase) RunCycle(ctx context.Context) *domain.CycleLog {
	result := &domain.CycleLog{RanAt: time.Now()}
	if !uc.running.CompareAndSwap(false, true) {
		result.Errors = append(result.Errors, domain.ErrCycleRunning.Error())
		return result
	}
	defer uc.running.Store(false)

	start := time.Now()
	uc.log.Info("monitor cycle started")
	uc.runCycle(ctx, result)
	result.DurationMs = time.Since(start).Milliseconds()

	if _, err := uc.cycles.Append(ctx, result); err != nil {
		uc.log.Error("failed to persist cycle log", "error", err)
	}
	uc.log.Info("monitor cycle finished",
		"relationships", result.RelationshipsChecked,
		"activities", result.ActivitiesFound,
		"new_negative", result.NewNegative,
		"alerts_sent", result.AlertsSent,
		"errors", len(result.Errors),
		"duration_ms", result.DurationMs)
	return result
}

func (uc *MonitorUsecase) runCycle(ctx context.Context, result *domain.CycleLog) {
	vouches, err := uc.ethos.VouchesByVoucher(ctx, uc.cfg.OperatorKey)
	if err != nil {
		result.Warn("list vouches: %v", err)
		return
	}

	seen := make(map[string]bool, len(vouches))
	for _, v := range vouches {
		// still listed upstream, so never an unvouch candidate even when
		// the per-item work below fails
		if v.SubjectKey != "" {
			seen[v.SubjectKey] = true
		}
		rel, err := uc.ingestRelationship(ctx, v)
		if err != nil {
			result.Warn("relationship %s: %v", v.SubjectKey, err)
			continue
		}
		if rel == nil {
			continue
		}
		result.RelationshipsChecked++
		uc.ingestActivities(ctx, rel, result)
	}

	// the vouch list succeeded, so anything active that vanished from it was
	// withdrawn on the network side
	uc.detectUnvouches(ctx, seen, result)
}

// ingestRelationship upserts one vouch into the relationship store.
// Returns (nil, nil) when no address resolves; such vouches are skipped.
func (uc *MonitorUsecase) ingestRelationship(ctx context.Context, v repo.VouchInfo) (*domain.Relationship, error) {
	if v.SubjectKey == "" {
		return nil, fmt.Errorf("vouch %s has no subject userkey", v.ID)
	}

	var name, address string
	var score int
	if v.Profile != nil {
		name = v.Profile.Name
		address = v.Profile.Address
		score = v.Profile.Score
	}
	if address == "" {
		prof, err := uc.ethos.Profile(ctx, v.SubjectKey)
		if err != nil {
			return nil, fmt.Errorf("profile lookup: %w", err)
		}
		name = prof.Name
		address = prof.Address
	}
	if address == "" {
		uc.log.Debug("skipping relationship without address", "userkey", v.SubjectKey)
		return nil, nil
	}
	if score == 0 {
		if s, err := uc.ethos.Score(ctx, v.SubjectKey); err == nil {
			score = s
		}
	}

	rel := &domain.Relationship{
		Userkey:  v.SubjectKey,
		VouchID:  v.ID,
		Name:     name,
		Address:  address,
		Score:    score,
		Active:   true,
		LastSeen: time.Now(),
	}
	id, err := uc.relationships.Upsert(ctx, rel)
	if err != nil {
		return nil, fmt.Errorf("upsert: %w", err)
	}
	rel.ID = id
	return rel, nil
}

// ingestActivities pulls recent review/slash events for one relationship
func (uc *MonitorUsecase) ingestActivities(ctx context.Context, rel *domain.Relationship, result *domain.CycleLog) {
	raws, err := uc.ethos.ReceivedActivities(ctx, rel.Userkey,
		[]string{domain.KindReview, domain.KindSlash}, uc.cfg.ActivityPageSize, 0)
	if err != nil {
		result.Warn("activities %s: %v", rel.Userkey, err)
		return
	}

	for _, raw := range raws {
		result.ActivitiesFound++
		if err := uc.ingestActivity(ctx, rel, raw, result); err != nil {
			result.Warn("activity %s/%s: %v", rel.Userkey, raw.ID, err)
		}
	}
}

// ingestActivity persists one activity and raises an alert when negative.
// Re-observed external ids are silent no-ops.
func (uc *MonitorUsecase) ingestActivity(ctx context.Context, rel *domain.Relationship, raw repo.RawActivity, result *domain.CycleLog) error {
	norm := normalizeActivity(raw, time.Now())

	exists, err := uc.activities.ExistsExternalID(ctx, norm.ExternalID)
	if err != nil {
		return fmt.Errorf("dedup lookup: %w", err)
	}
	if exists {
		return nil
	}

	rec := &domain.ActivityRecord{
		RelationshipID: rel.ID,
		ExternalID:     norm.ExternalID,
		Kind:           norm.Kind,
		AuthorKey:      raw.AuthorKey,
		AuthorName:     raw.AuthorName,
		AuthorAddress:  raw.AuthorAddress,
		Score:          norm.Score,
		Comment:        raw.Comment,
		Negative:       norm.Negative,
		EventAt:        norm.EventAt,
	}
	id, err := uc.activities.Create(ctx, rec)
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	rec.ID = id

	if !rec.Negative {
		return nil
	}
	result.NewNegative++
	uc.log.Warn("negative activity detected",
		"relationship", rel.Userkey, "kind", rec.Kind, "score", rec.Score, "author", rec.AuthorKey)

	uc.raiseAlert(ctx, rel, rec, result)
	return nil
}

// raiseAlert assembles the payload, fans it out and records the suggestion
func (uc *MonitorUsecase) raiseAlert(ctx context.Context, rel *domain.Relationship, rec *domain.ActivityRecord, result *domain.CycleLog) {
	payload := uc.buildPayload(rel, rec)
	if uc.cfg.AutoDefense && rec.Kind != domain.KindUnvouch {
		sug := uc.defense.SuggestDefense(uc.cfg.AutoDefenseScore)
		payload.Suggested = &sug
	}

	delivered := uc.dispatch.SendAlert(ctx, payload)
	result.AlertsSent += len(delivered)

	if payload.Suggested != nil {
		_, err := uc.defenses.Create(ctx, &domain.Defense{
			ActivityID: rec.ID,
			TargetKey:  rel.Userkey,
			Score:      payload.Suggested.Score,
			Comment:    payload.Suggested.Comment,
			Status:     domain.DefensePending,
		})
		if err != nil {
			result.Warn("defense suggestion for activity %d: %v", rec.ID, err)
		}
	}

	if err := uc.activities.MarkAlerted(ctx, rec.ID); err != nil {
		result.Warn("mark alerted %d: %v", rec.ID, err)
	}
}

// detectUnvouches deactivates relationships that vanished from the vouch list
func (uc *MonitorUsecase) detectUnvouches(ctx context.Context, seen map[string]bool, result *domain.CycleLog) {
	active, err := uc.relationships.List(ctx, true)
	if err != nil {
		result.Warn("list tracked relationships: %v", err)
		return
	}

	for _, rel := range active {
		if seen[rel.Userkey] {
			continue
		}
		if err := uc.relationships.Deactivate(ctx, rel.ID); err != nil {
			result.Warn("deactivate %s: %v", rel.Userkey, err)
			continue
		}
		uc.log.Warn("vouch withdrawn", "relationship", rel.Userkey)

		rec := &domain.ActivityRecord{
			RelationshipID: rel.ID,
			ExternalID:     fmt.Sprintf("unvouch-%s-%d", rel.Userkey, time.Now().UnixMilli()),
			Kind:           domain.KindUnvouch,
			Comment:        "vouch is no longer present on the network",
			Negative:       true,
			EventAt:        time.Now(),
		}
		id, err := uc.activities.Create(ctx, rec)
		if err != nil {
			result.Warn("persist unvouch %s: %v", rel.Userkey, err)
			continue
		}
		rec.ID = id
		result.NewNegative++
		uc.raiseAlert(ctx, rel, rec, result)
	}
}

// buildPayload maps a stored activity to the channel-independent alert body
func (uc *MonitorUsecase) buildPayload(rel *domain.Relationship, rec *domain.ActivityRecord) *domain.AlertPayload {
	authorName := rec.AuthorName
	if authorName == "" && rec.AuthorAddress != "" {
		authorName = domain.ShortAddress(rec.AuthorAddress)
	}
	if authorName == "" {
		authorName = rec.AuthorKey
	}

	return &domain.AlertPayload{
		Type:          rec.AlertType(),
		ActivityID:    rec.ID,
		TargetName:    rel.DisplayName(),
		TargetKey:     rel.Userkey,
		TargetAddress: rel.Address,
		AuthorName:    authorName,
		AuthorKey:     rec.AuthorKey,
		AuthorAddress: rec.AuthorAddress,
		Score:         rec.Score,
		Comment:       rec.Comment,
		ProfileURL:    fmt.Sprintf("%s/%s", strings.TrimRight(uc.cfg.ProfileBaseURL, "/"), url.PathEscape(rel.Userkey)),
		DashboardURL:  fmt.Sprintf("%s/defend/%d", strings.TrimRight(uc.cfg.DashboardBaseURL, "/"), rec.ID),
	}
}

// Housekeep expires stale pending alerts and prunes old cycle logs
func (uc *MonitorUsecase) Housekeep(ctx context.Context) {
	if n, err := uc.alerts.ExpirePendingBefore(ctx, time.Now().Add(-uc.cfg.AlertRetention)); err != nil {
		uc.log.Error("alert expiry failed", "error", err)
	} else if n > 0 {
		uc.log.Info("expired stale alerts", "count", n)
	}

	if n, err := uc.cycles.PruneBefore(ctx, time.Now().Add(-uc.cfg.LogRetention)); err != nil {
		uc.log.Error("cycle log pruning failed", "error", err)
	} else if n > 0 {
		uc.log.Info("pruned old cycle logs", "count", n)
	}
}
