package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vulcan-ci/vulcan/internal/store"
)

// LivenessSweeper is the orchestrator's sole background task: it periodically
// finds workers that have missed their heartbeat deadline, marks them errored,
// and requeues whatever fragment they were holding. A fixed-cadence
// cron.ConstantDelaySchedule drives it rather than a ticker, so a slow tick
// (GC pause, contended DB) can't cause overlapping runs to stack up.
type LivenessSweeper struct {
	Fragments      *store.FragmentRepository
	Workers        *store.WorkerRepository
	StaleThreshold time.Duration
	MaxAttempts    int
	Logger         *slog.Logger

	cron *cron.Cron
}

// NewLivenessSweeper constructs a sweeper; call Start to begin running it on
// interval.
func NewLivenessSweeper(fragments *store.FragmentRepository, workers *store.WorkerRepository, staleThreshold time.Duration, maxAttempts int, logger *slog.Logger) *LivenessSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &LivenessSweeper{
		Fragments:      fragments,
		Workers:        workers,
		StaleThreshold: staleThreshold,
		MaxAttempts:    maxAttempts,
		Logger:         logger,
	}
}

// Start schedules the sweep at a fixed cadence (spec default 30s) and returns
// immediately; call Stop to halt it.
func (s *LivenessSweeper) Start(ctx context.Context, interval time.Duration) {
	c := cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(cron.ConstantDelaySchedule{Delay: interval}, cron.FuncJob(func() {
		if err := s.Sweep(ctx); err != nil {
			s.Logger.Error("liveness sweep failed", slog.String("error", err.Error()))
		}
	}))
	c.Start()
	s.cron = c
}

// Stop halts the sweeper, waiting for any in-flight sweep to finish.
func (s *LivenessSweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep runs one pass: find stale workers, mark them errored, and reclaim
// whatever fragment each was holding. Safe to run concurrently with
// report_result — both go through the same row-locked transaction path, so a
// late report that lands first simply makes the reclaim here a no-op.
func (s *LivenessSweeper) Sweep(ctx context.Context) error {
	now := time.Now()
	stale, err := s.Workers.Stale(ctx, s.StaleThreshold, now)
	if err != nil {
		return err
	}

	for _, w := range stale {
		if err := s.Workers.MarkError(ctx, w.ID); err != nil {
			s.Logger.Error("mark worker error failed", slog.String("worker_id", w.ID.String()), slog.String("error", err.Error()))
			continue
		}
		s.Logger.Warn("worker marked stale", slog.String("worker_id", w.ID.String()), slog.Duration("stale_for", now.Sub(w.LastHeartbeatAt)))

		if w.CurrentFragmentID == nil {
			continue
		}
		if err := s.Fragments.ReclaimFragment(ctx, *w.CurrentFragmentID, s.MaxAttempts); err != nil {
			s.Logger.Error("reclaim fragment failed", slog.String("fragment_id", w.CurrentFragmentID.String()), slog.String("error", err.Error()))
		}
	}
	return nil
}
