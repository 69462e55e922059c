package service

import (
	"context"
	"sync"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/usecase"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
)

const watchdogInterval = 5 * time.Minute

// CredentialWatchdog re-evaluates the operator session token on a fixed
// interval and pushes a channel notice when it crosses into expiring or
// expired. The edge detection lives in the credential usecase, so a token
// that stays bad produces one notice, not one per tick.
type CredentialWatchdog struct {
	credUC     *usecase.CredentialUsecase
	dispatchUC *usecase.DispatchUsecase
	log        *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCredentialWatchdog creates a credential watchdog
func NewCredentialWatchdog(credUC *usecase.CredentialUsecase, dispatchUC *usecase.DispatchUsecase, log *logger.Logger) *CredentialWatchdog {
	return &CredentialWatchdog{
		credUC:     credUC,
		dispatchUC: dispatchUC,
		log:        log.With("component", "watchdog"),
	}
}

// Start checks the token immediately, then every five minutes.
func (w *CredentialWatchdog) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop()
	w.log.Info("credential watchdog started", "interval", watchdogInterval.String())
}

// Stop stops the watchdog
func (w *CredentialWatchdog) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *CredentialWatchdog) loop() {
	defer w.wg.Done()

	w.check()

	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *CredentialWatchdog) check() {
	st, fire := w.credUC.Check()
	if !fire {
		return
	}
	w.log.Warn("session token needs attention",
		"expired", st.IsExpired,
		"expiring_soon", st.IsExpiringSoon,
		"seconds_left", st.SecondsLeft)

	ctx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
	defer cancel()
	w.dispatchUC.SendCredentialAlert(ctx, st)
}
