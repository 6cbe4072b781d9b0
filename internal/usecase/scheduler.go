package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires the full pipeline once a day at the configured local
// time.
type Scheduler struct {
	pipeline  *Pipeline
	location  *time.Location
	startHour int
	runHour   int
	runMinute int
	logger    *slog.Logger
}

// NewScheduler wires the daily trigger.
func NewScheduler(pipeline *Pipeline, location *time.Location, startHour, runHour, runMinute int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		pipeline:  pipeline,
		location:  location,
		startHour: startHour,
		runHour:   runHour,
		runMinute: runMinute,
		logger:    logger.With("component", "scheduler"),
	}
}

// Run blocks until the context is cancelled, executing the pipeline on
// schedule. A run that overlaps a previous one is skipped by the
// pipeline's single-flight guard.
func (s *Scheduler) Run(ctx context.Context) error {
	runner := cron.New(cron.WithLocation(s.location))

	spec := fmt.Sprintf("%d %d * * *", s.runMinute, s.runHour)
	_, err := runner.AddFunc(spec, func() {
		s.trigger(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}

	s.logger.Info("scheduler started", "spec", spec, "timezone", s.location.String())
	runner.Start()

	<-ctx.Done()
	stopCtx := runner.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) trigger(ctx context.Context) {
	startAt, endAt := ComputeWindow(time.Now(), s.location, s.startHour)
	stats, err := s.pipeline.Run(ctx, startAt, endAt, false)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Warn("previous run still active, skipping")
	case err != nil:
		s.logger.Error("scheduled run failed", "run_id", stats.RunID, "error", err)
	case stats.Skipped:
		s.logger.Info("scheduled run skipped, already published", "run_id", stats.RunID)
	default:
		s.logger.Info("scheduled run finished", "run_id", stats.RunID,
			"published_messages", stats.Published)
	}
}
