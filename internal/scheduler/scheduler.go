// Package scheduler triggers runs on a fixed interval in serve mode.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Job is one scheduled run. Its error is logged and the schedule goes on.
type Job func(ctx context.Context) error

type Scheduler struct {
	interval time.Duration
	job      Job
	log      *slog.Logger
}

func New(interval time.Duration, job Job, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{interval: interval, job: job, log: log}
}

// Run executes the job once right away and then on every tick until ctx is
// done. Ticks that fire while a job is still running are dropped.
func (s *Scheduler) Run(ctx context.Context) {
	if s.job == nil || s.interval <= 0 {
		return
	}
	s.log.Info("scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.job(ctx); err != nil {
		s.log.Error("scheduled run failed", "error", err)
	}
}
