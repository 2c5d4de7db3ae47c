package daemon

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neu-labs/neu/internal/updater"
)

// Runner performs one update cycle.
type Runner interface {
	Run(ctx context.Context) updater.Result
}

// Scheduler runs cycles one at a time from a single goroutine: once at
// start, then on every tick and every trigger. Triggers that arrive while
// one is already pending are coalesced.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	trigger  chan struct{}
	logger   *slog.Logger
	running  atomic.Bool

	mu   sync.RWMutex
	last *updater.Result
}

// NewScheduler creates a Scheduler running r every interval.
func NewScheduler(r Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:   r,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		logger:   logger,
	}
}

// Trigger requests a cycle as soon as the current one, if any, ends.
// It returns false when a request was already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run drives cycles until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx, "timer")
		case <-s.trigger:
			s.runOnce(ctx, "trigger")
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, cause string) {
	if ctx.Err() != nil {
		return
	}
	s.running.Store(true)
	defer s.running.Store(false)

	s.logger.Debug("starting update cycle", "cause", cause)
	res := s.runner.Run(ctx)

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()
}

// Last returns the result of the most recent cycle this scheduler ran.
func (s *Scheduler) Last() (updater.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return updater.Result{}, false
	}
	return *s.last, true
}

// Running reports whether a cycle is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}
