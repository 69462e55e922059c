package usecase

import (
	"context"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
)

// TriageUsecase annotates alerts with an LLM note when a client is configured
type TriageUsecase struct {
	triageRepo repo.TriageRepo // nil means triage is disabled
	log        *logger.Logger
}

// NewTriageUsecase creates a triage usecase
func NewTriageUsecase(triageRepo repo.TriageRepo, log *logger.Logger) *TriageUsecase {
	return &TriageUsecase{
		triageRepo: triageRepo,
		log:        log.With("component", "triage"),
	}
}

// Annotate returns a short triage note, or "" when disabled or failing
func (uc *TriageUsecase) Annotate(ctx context.Context, p *domain.AlertPayload) string {
	if uc == nil || uc.triageRepo == nil {
		return ""
	}
	note, err := uc.triageRepo.Annotate(ctx, p)
	if err != nil {
		uc.log.Warn("triage annotation failed", "error", err)
		return ""
	}
	return note
}
