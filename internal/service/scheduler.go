package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

// Scheduler runs periodic maintenance jobs.
type Scheduler struct {
	sched gocron.Scheduler
}

// NewScheduler registers the session cleanup job. Jobs start with Start.
func NewScheduler(auth *AuthService, cleanupInterval time.Duration) (*Scheduler, error) {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(cleanupInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			n, err := auth.CleanupSessions(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Session cleanup failed")
				return
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("Expired sessions removed")
			}
		}),
		gocron.WithName("session-cleanup"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register session cleanup job: %w", err)
	}

	return &Scheduler{sched: sched}, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.sched.Start()
}

// Stop waits for running jobs and stops the scheduler.
func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}
