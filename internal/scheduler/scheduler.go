// Package scheduler runs the Workflow Store's retention sweep on a cron
// schedule, per spec §3: a completed workflow record "is retained at
// least until a configured retention policy removes it". Grounded on the
// teacher's internal/scheduler/scheduler.go background-loop shape
// (ticker-driven, dedup in-flight runs, graceful Stop), narrowed from the
// teacher's generic scheduled-workflow-template runner down to a single
// periodic action: sweep workflow records older than a retention window.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/c4h-run/refactorctl/internal/workflowstore"
)

// Sweeper is the subset of workflowstore.Store the scheduler needs,
// narrowed so tests can substitute a fake without building a real Store.
type Sweeper interface {
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// RetentionScheduler periodically removes workflow records whose
// finished_at is older than Retention, on the cadence named by CronExpr.
type RetentionScheduler struct {
	store     Sweeper
	retention time.Duration
	schedule  cron.Schedule
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inflight sync.Mutex
	running  bool
}

// New builds a RetentionScheduler that sweeps store on cronExpr's cadence
// (standard 5-field cron), removing records finished more than retention
// ago. cronExpr defaults to hourly ("0 * * * *") if empty.
func New(store Sweeper, cronExpr string, retention time.Duration, logger *slog.Logger) (*RetentionScheduler, error) {
	if cronExpr == "" {
		cronExpr = "0 * * * *"
	}
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse cron expression %q: %w", cronExpr, err)
	}
	return &RetentionScheduler{store: store, retention: retention, schedule: schedule, logger: logger}, nil
}

// Start launches the background sweep loop. Calling Start twice without an
// intervening Stop is an error.
func (s *RetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: already started")
	}
	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler.started", slog.Duration("retention", s.retention))
	return nil
}

func (s *RetentionScheduler) loop(ctx context.Context) {
	defer close(s.done)

	next := s.schedule.Next(time.Now().UTC())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.tick(ctx)
			next = s.schedule.Next(time.Now().UTC())
			timer.Reset(time.Until(next))
		}
	}
}

// tick runs one sweep, skipping it if a prior tick is still running (dedup,
// mirroring the teacher's in-flight job tracking narrowed to one job).
func (s *RetentionScheduler) tick(ctx context.Context) {
	s.inflight.Lock()
	if s.running {
		s.inflight.Unlock()
		return
	}
	s.running = true
	s.inflight.Unlock()

	defer func() {
		s.inflight.Lock()
		s.running = false
		s.inflight.Unlock()
	}()

	cutoff := time.Now().UTC().Add(-s.retention)
	removed, err := s.store.Sweep(ctx, cutoff)
	if err != nil {
		s.logger.Error("scheduler.sweep_failed", slog.Any("error", err))
		return
	}
	if removed > 0 {
		s.logger.Info("scheduler.swept_workflows", slog.Int("count", removed), slog.Time("cutoff", cutoff))
	}
}

// Stop gracefully shuts down the scheduler, waiting for any in-flight tick
// to finish.
func (s *RetentionScheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.logger.Info("scheduler.stopped")
	return nil
}

var _ Sweeper = (*workflowstore.Store)(nil)
