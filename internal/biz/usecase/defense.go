package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
)

// defenseBucket pairs a canonical counter-review score with its message set
type defenseBucket struct {
	score    int
	messages []string
}

// defaultBucket is used when no bucket matches the requested score
const defaultBucket = 3

var defenseBuckets = map[int]defenseBucket{
	1: {score: 1, messages: []string{
		"I have worked with this person and had a reasonable experience.",
		"My interactions here have been fine; the criticism above does not match what I saw.",
	}},
	2: {score: 2, messages: []string{
		"Reliable counterparty in my experience. The negative review above is not representative.",
		"I have vouched for this person and they have consistently acted in good faith.",
		"Solid track record from where I stand; I disagree with the review above.",
	}},
	3: {score: 3, messages: []string{
		"Strong vouch from me. This person has been trustworthy in every interaction we have had.",
		"I stake my own reputation on this person; the attack above does not reflect their conduct.",
		"One of the more dependable people I interact with on this network. The negative review is unfounded.",
	}},
}

// DefenseUsecase drives the counter-review lifecycle
type DefenseUsecase struct {
	ethos    repo.EthosRepo
	defenses repo.DefenseRepo
	alerts   repo.AlertRepo
	cred     *CredentialUsecase
	log      *logger.Logger
}

// NewDefenseUsecase creates a defense usecase
func NewDefenseUsecase(ethos repo.EthosRepo, defenses repo.DefenseRepo, alerts repo.AlertRepo, cred *CredentialUsecase, log *logger.Logger) *DefenseUsecase {
	return &DefenseUsecase{
		ethos:    ethos,
		defenses: defenses,
		alerts:   alerts,
		cred:     cred,
		log:      log.With("component", "defense"),
	}
}

// SuggestDefense picks the template bucket for the requested score and draws
// one of its messages. An unknown score falls back to the default bucket.
func (uc *DefenseUsecase) SuggestDefense(requested int) domain.SuggestedDefense {
	bucket, ok := defenseBuckets[requested]
	if !ok {
		bucket = defenseBuckets[defaultBucket]
	}
	return domain.SuggestedDefense{
		Score:   bucket.score,
		Comment: bucket.messages[rand.Intn(len(bucket.messages))],
	}
}

// ExecuteDefense confirms and submits the active defense for a review.
// The defense is moved to CONFIRMED before submission so a crash mid-flight
// leaves an auditable intermediate state.
func (uc *DefenseUsecase) ExecuteDefense(ctx context.Context, alertID string, activityID int64) (*domain.Defense, error) {
	alert, err := uc.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("load alert %s: %w", alertID, err)
	}
	if alert.ActivityID != activityID {
		return nil, fmt.Errorf("alert %s does not cover activity %d: %w", alertID, activityID, domain.ErrNotFound)
	}
	def, err := uc.defenses.GetActiveByActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("load active defense for activity %d: %w", activityID, err)
	}
	if err := uc.cred.RequireValid(); err != nil {
		return nil, err
	}

	if def.Status == domain.DefensePending {
		if err := uc.defenses.MarkConfirmed(ctx, def.ID); err != nil {
			return nil, fmt.Errorf("confirm defense %d: %w", def.ID, err)
		}
		def.Status = domain.DefenseConfirmed
	}

	receipt, err := uc.ethos.SubmitReview(ctx, def.TargetKey, def.Score, def.Comment)
	if err != nil {
		uc.log.Error("defense submission failed", "defense_id", def.ID, "error", err)
		if mErr := uc.defenses.MarkFailed(ctx, def.ID, err.Error()); mErr != nil {
			uc.log.Error("failed to record defense failure", "defense_id", def.ID, "error", mErr)
		}
		def.Status = domain.DefenseFailed
		def.LastError = err.Error()
		return def, fmt.Errorf("submit review: %w", err)
	}

	if err := uc.defenses.MarkPosted(ctx, def.ID, def.Score, def.Comment, receipt.ReviewID, receipt.TxRef); err != nil {
		return nil, fmt.Errorf("record posted defense %d: %w", def.ID, err)
	}
	def.Status = domain.DefensePosted
	def.ExternalID = receipt.ReviewID
	def.TxRef = receipt.TxRef

	if err := uc.alerts.UpdateStatus(ctx, alert.ID, domain.AlertConfirmed); err != nil {
		uc.log.Warn("failed to confirm alert", "alert_id", alert.ID, "error", err)
	}

	uc.log.Info("defense posted", "defense_id", def.ID, "review_id", receipt.ReviewID, "tx_ref", receipt.TxRef)
	return def, nil
}

// PostCustomDefense submits an operator-authored review. When linked to a
// review with an active defense, that row is reused rather than duplicated.
func (uc *DefenseUsecase) PostCustomDefense(ctx context.Context, targetKey string, score int, comment string, activityID int64) (*domain.Defense, error) {
	if err := uc.cred.RequireValid(); err != nil {
		return nil, err
	}

	var def *domain.Defense
	if activityID > 0 {
		existing, err := uc.defenses.GetActiveByActivity(ctx, activityID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("load active defense for activity %d: %w", activityID, err)
		}
		def = existing
	}
	if def == nil {
		def = &domain.Defense{
			ActivityID: activityID,
			TargetKey:  targetKey,
			Score:      score,
			Comment:    comment,
			Status:     domain.DefensePending,
		}
		id, err := uc.defenses.Create(ctx, def)
		if err != nil {
			return nil, fmt.Errorf("create defense: %w", err)
		}
		def.ID = id
	}

	if def.Status == domain.DefensePending {
		if err := uc.defenses.MarkConfirmed(ctx, def.ID); err != nil {
			return nil, fmt.Errorf("confirm defense %d: %w", def.ID, err)
		}
		def.Status = domain.DefenseConfirmed
	}

	receipt, err := uc.ethos.SubmitReview(ctx, targetKey, score, comment)
	if err != nil {
		uc.log.Error("custom defense submission failed", "defense_id", def.ID, "error", err)
		if mErr := uc.defenses.MarkFailed(ctx, def.ID, err.Error()); mErr != nil {
			uc.log.Error("failed to record defense failure", "defense_id", def.ID, "error", mErr)
		}
		def.Status = domain.DefenseFailed
		def.LastError = err.Error()
		return def, fmt.Errorf("submit review: %w", err)
	}

	if err := uc.defenses.MarkPosted(ctx, def.ID, score, comment, receipt.ReviewID, receipt.TxRef); err != nil {
		return nil, fmt.Errorf("record posted defense %d: %w", def.ID, err)
	}
	def.Score = score
	def.Comment = comment
	def.Status = domain.DefensePosted
	def.ExternalID = receipt.ReviewID
	def.TxRef = receipt.TxRef

	uc.log.Info("custom defense posted", "defense_id", def.ID, "review_id", receipt.ReviewID)
	return def, nil
}
