package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// scheduler runs the periodic rebuild.
type scheduler struct {
	s      gocron.Scheduler
	logger *slog.Logger
}

func newScheduler(logger *slog.Logger) (*scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &scheduler{s: s, logger: logger}, nil
}

// every schedules fn at a fixed interval. Overlapping runs are skipped.
func (s *scheduler) every(ctx context.Context, interval time.Duration, name string, fn func(context.Context)) error {
	_, err := s.s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { fn(ctx) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s job: %w", name, err)
	}
	return nil
}

// run starts the scheduler and blocks until ctx is done.
func (s *scheduler) run(ctx context.Context) error {
	s.logger.Info("Starting scheduler")
	s.s.Start()
	<-ctx.Done()
	s.logger.Info("Stopping scheduler")
	return s.s.Shutdown()
}
