package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSweepInterval is how often a Sweeper prunes when no interval is given.
const DefaultSweepInterval = time.Minute

// Pruner is implemented by anything that can drop its expired entries.
type Pruner interface {
	PruneExpired() int
}

// Sweeper periodically calls PruneExpired on a set of caches.
type Sweeper struct {
	cron    *cron.Cron
	targets []Pruner
	logger  zerolog.Logger
}

// NewSweeper schedules a prune of every target each interval.
// cron's @every schedule rounds intervals below one second up to one second.
func NewSweeper(interval time.Duration, logger zerolog.Logger, targets ...Pruner) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s := &Sweeper{
		cron:    cron.New(),
		targets: targets,
		logger:  logger.With().Str("component", "cacheSweeper").Logger(),
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() { s.Sweep() }); err != nil {
		return nil, fmt.Errorf("failed to schedule cache sweep: %w", err)
	}
	return s, nil
}

// Sweep prunes all targets once and returns the total number of removed entries.
func (s *Sweeper) Sweep() int {
	total := 0
	for _, t := range s.targets {
		total += t.PruneExpired()
	}
	if total > 0 {
		s.logger.Debug().Int("removed", total).Msg("Cache sweep complete")
	}
	return total
}

// Start begins the schedule in its own goroutine.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Debug().Int("targets", len(s.targets)).Msg("Cache sweeper started")
}

// Stop halts the schedule and waits for a running sweep or ctx, whichever ends first.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
