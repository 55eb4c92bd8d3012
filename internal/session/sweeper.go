package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper expires idle sessions on a polling loop.
type Sweeper struct {
	manager *Manager
	poll    time.Duration
	logger  *slog.Logger
}

// NewSweeper creates a Sweeper over the manager. If pollInterval is <= 0,
// it defaults to one minute.
func NewSweeper(manager *Manager, pollInterval time.Duration) *Sweeper {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Sweeper{
		manager: manager,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.RunOnce(now)
		}
	}
}

// RunOnce performs a single sweep and returns the number of sessions expired.
func (s *Sweeper) RunOnce(now time.Time) int {
	expired, err := s.manager.Expire(now)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
	}
	if len(expired) > 0 {
		s.logger.Info("expired idle sessions", "count", len(expired))
	}
	return len(expired)
}
