package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
)

// DispatchConfig holds alert fan-out settings
type DispatchConfig struct {
	SendTimeout time.Duration // applied to each notifier send
}

// DefaultDispatchConfig returns the default fan-out settings
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{SendTimeout: 30 * time.Second}
}

// DispatchUsecase fans alerts out to the configured notification channels
type DispatchUsecase struct {
	notifiers []repo.Notifier
	alerts    repo.AlertRepo
	channels  repo.ChannelConfigRepo
	triage    *TriageUsecase
	defense   *DefenseUsecase
	cfg       DispatchConfig
	log       *logger.Logger
}

// NewDispatchUsecase creates a dispatch usecase
func NewDispatchUsecase(notifiers []repo.Notifier, alerts repo.AlertRepo, channels repo.ChannelConfigRepo, triage *TriageUsecase, defense *DefenseUsecase, cfg DispatchConfig, log *logger.Logger) *DispatchUsecase {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultDispatchConfig().SendTimeout
	}
	return &DispatchUsecase{
		notifiers: notifiers,
		alerts:    alerts,
		channels:  channels,
		triage:    triage,
		defense:   defense,
		cfg:       cfg,
		log:       log.With("component", "dispatch"),
	}
}

// SendAlert fans the payload out to every enabled channel concurrently and
// returns a best-effort map of channel name to delivery id. Each channel
// settles independently; one failure never blocks or fails another.
func (uc *DispatchUsecase) SendAlert(ctx context.Context, p *domain.AlertPayload) map[string]string {
	if note := uc.triage.Annotate(ctx, p); note != "" {
		p.TriageNote = note
	}

	type delivery struct {
		channel   string
		alertID   string
		messageID string
		err       error
	}

	enabled := uc.enabledNotifiers(ctx)
	results := make(chan delivery, len(enabled))
	for _, n := range enabled {
		// the alert id is minted before delivery so interactive channels can
		// embed it in their callback data
		alertID := uuid.NewString()
		go func(n repo.Notifier, alertID string) {
			sendCtx, cancel := context.WithTimeout(ctx, uc.cfg.SendTimeout)
			defer cancel()
			msgID, err := n.SendAlert(sendCtx, alertID, p)
			results <- delivery{channel: n.Name(), alertID: alertID, messageID: msgID, err: err}
		}(n, alertID)
	}

	delivered := make(map[string]string)
	for range enabled {
		d := <-results
		if d.err != nil {
			uc.log.Warn("alert delivery failed", "channel", d.channel, "error", d.err)
			continue
		}
		delivered[d.channel] = d.messageID
		alert := &domain.Alert{
			ID:         d.alertID,
			ActivityID: p.ActivityID,
			Type:       p.Type,
			Channel:    d.channel,
			Status:     domain.AlertPending,
			MessageID:  d.messageID,
			SentAt:     time.Now(),
		}
		if err := uc.alerts.Create(ctx, alert); err != nil {
			uc.log.Error("failed to persist alert", "channel", d.channel, "alert_id", d.alertID, "error", err)
		}
	}
	return delivered
}

// SendCredentialAlert notifies every enabled channel about credential state.
// No alert rows are written; there is no activity to correlate with.
func (uc *DispatchUsecase) SendCredentialAlert(ctx context.Context, st domain.CredentialStatus) {
	var text string
	if st.IsExpired {
		text = "🔑 Session token has EXPIRED. New defenses cannot be posted until it is refreshed."
	} else {
		text = fmt.Sprintf("🔑 Session token expires in %d minutes. Refresh it soon to keep defenses available.", st.SecondsLeft/60)
	}

	var wg sync.WaitGroup
	for _, n := range uc.enabledNotifiers(ctx) {
		wg.Add(1)
		go func(n repo.Notifier) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, uc.cfg.SendTimeout)
			defer cancel()
			if err := n.SendText(sendCtx, text); err != nil {
				uc.log.Warn("credential notice delivery failed", "channel", n.Name(), "error", err)
			}
		}(n)
	}
	wg.Wait()
}

// HandleAction processes an interactive channel response and returns the
// acknowledgement text shown to the operator. Unrecognized actions are
// acknowledged as no-ops.
func (uc *DispatchUsecase) HandleAction(ctx context.Context, action domain.AlertAction, alertID string, activityID int64) (string, error) {
	switch action {
	case domain.ActionConfirm:
		def, err := uc.defense.ExecuteDefense(ctx, alertID, activityID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ Defense posted (review %s)", def.ExternalID), nil
	case domain.ActionIgnore:
		if err := uc.alerts.UpdateStatus(ctx, alertID, domain.AlertIgnored); err != nil {
			return "", err
		}
		return "🙈 Alert ignored", nil
	case domain.ActionEdit:
		// editing happens on the dashboard, nothing changes here
		return "✏️ Open the dashboard to edit the defense before posting", nil
	default:
		return "", nil
	}
}

// enabledNotifiers filters the registered channels by their persisted flag
func (uc *DispatchUsecase) enabledNotifiers(ctx context.Context) []repo.Notifier {
	out := make([]repo.Notifier, 0, len(uc.notifiers))
	for _, n := range uc.notifiers {
		enabled, err := uc.channels.IsEnabled(ctx, n.Name())
		if err != nil {
			uc.log.Warn("channel config lookup failed", "channel", n.Name(), "error", err)
			enabled = true
		}
		if enabled {
			out = append(out, n)
		}
	}
	return out
}
