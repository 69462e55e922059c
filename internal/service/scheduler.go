package service

import (
	"context"
	"sync"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/usecase"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
)

// CycleScheduler drives periodic monitor cycles plus daily housekeeping.
// Cycles and housekeeping are dispatched synchronously from one select loop
// so they never overlap each other.
type CycleScheduler struct {
	monitorUC *usecase.MonitorUsecase
	interval  time.Duration
	warmup    time.Duration
	log       *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCycleScheduler creates a cycle scheduler
func NewCycleScheduler(monitorUC *usecase.MonitorUsecase, interval, warmup time.Duration, log *logger.Logger) *CycleScheduler {
	return &CycleScheduler{
		monitorUC: monitorUC,
		interval:  interval,
		warmup:    warmup,
		log:       log.With("component", "scheduler"),
	}
}

// Start arms the timers. The first cycle runs after the warm-up delay,
// independent of the first interval tick.
func (s *CycleScheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop()
	s.log.Info("scheduler started", "interval", s.interval.String(), "warmup", s.warmup.String())
}

// Stop disarms the timers. An in-flight cycle is not aborted; after a short
// grace period shutdown proceeds without it.
func (s *CycleScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-time.After(2 * time.Second):
		s.log.Warn("scheduler stopping with a cycle still in flight")
	}
}

// TriggerNow runs one cycle out-of-band on the caller's goroutine. The
// single-flight latch inside the monitor rejects it when a timer-driven
// cycle is already running.
func (s *CycleScheduler) TriggerNow(ctx context.Context) *domain.CycleLog {
	return s.monitorUC.RunCycle(ctx)
}

func (s *CycleScheduler) loop() {
	defer s.wg.Done()

	warmup := time.NewTimer(s.warmup)
	defer warmup.Stop()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	daily := time.NewTicker(24 * time.Hour)
	defer daily.Stop()

	// cycles run on a context that survives Stop so in-flight work drains
	// instead of failing fast; the loop itself still exits on s.ctx
	runCtx := context.WithoutCancel(s.ctx)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-warmup.C:
			s.monitorUC.RunCycle(runCtx)
		case <-ticker.C:
			s.monitorUC.RunCycle(runCtx)
		case <-daily.C:
			s.monitorUC.Housekeep(runCtx)
		}
	}
}
