package jobs

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const sweepTimeout = 30 * time.Second

// StaleDismisser is implemented by *services.SessionService.
type StaleDismisser interface {
	DismissStale(ctx context.Context, pendingTimeout, idleTimeout time.Duration) (int, error)
}

// StaleSessionSweeper periodically dismisses sessions nobody accepted and
// active sessions both peers abandoned.
type StaleSessionSweeper struct {
	sessions       StaleDismisser
	pendingTimeout time.Duration
	idleTimeout    time.Duration
	cron           *cron.Cron
	log            zerolog.Logger
}

func NewStaleSessionSweeper(sessions StaleDismisser, pendingTimeout, idleTimeout time.Duration, log zerolog.Logger) *StaleSessionSweeper {
	log = log.With().Str("component", "sweeper").Logger()
	cronLog := cron.PrintfLogger(&log)
	return &StaleSessionSweeper{
		sessions:       sessions,
		pendingTimeout: pendingTimeout,
		idleTimeout:    idleTimeout,
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLog),
			cron.SkipIfStillRunning(cronLog),
		)),
		log: log,
	}
}

// Start schedules the sweep and starts the cron runner in its own goroutine.
func (s *StaleSessionSweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.Run(context.Background()) }); err != nil {
		return errors.Wrapf(err, "schedule sweeper %q", schedule)
	}
	s.cron.Start()
	s.log.Info().Str("schedule", schedule).Msg("stale session sweeper scheduled")
	return nil
}

// Stop halts scheduling; the returned context is done once a running sweep finishes.
func (s *StaleSessionSweeper) Stop() context.Context {
	return s.cron.Stop()
}

// Run performs one sweep.
func (s *StaleSessionSweeper) Run(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	n, err := s.sessions.DismissStale(ctx, s.pendingTimeout, s.idleTimeout)
	if err != nil {
		s.log.Error().Err(err).Int("dismissed", n).Msg("stale session sweep failed")
		return n
	}
	if n > 0 {
		s.log.Info().Int("dismissed", n).Msg("dismissed stale sessions")
	}
	return n
}
