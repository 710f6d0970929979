package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweepable removes workspace entries older than a cutoff; 0 removes all.
type Sweepable interface {
	Sweep(olderThan time.Duration) (int, error)
}

// Sweeper reclaims orphaned temp artifacts. It runs on a ticker, can be
// nudged after each job, and does a full sweep at shutdown.
type Sweeper struct {
	ws       Sweepable
	interval time.Duration
	ttl      time.Duration
	trigger  chan struct{}
	logger   zerolog.Logger
}

// NewSweeper creates a Sweeper removing entries older than ttl every interval.
func NewSweeper(ws Sweepable, interval, ttl time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Sweeper{
		ws:       ws,
		interval: interval,
		ttl:      ttl,
		trigger:  make(chan struct{}, 1),
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// Trigger asks for an opportunistic sweep without blocking. Requests made
// while one is pending collapse into it.
func (s *Sweeper) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run sweeps until ctx is done. It does not do the final sweep; call
// Shutdown once in-flight jobs have drained.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(s.ttl)
		case <-s.trigger:
			s.sweep(s.ttl)
		}
	}
}

// Shutdown removes everything left in the workspace.
func (s *Sweeper) Shutdown() (int, error) {
	n, err := s.ws.Sweep(0)
	if err != nil {
		return n, err
	}
	s.logger.Info().Int("removed", n).Msg("workspace cleared")
	return n, nil
}

func (s *Sweeper) sweep(olderThan time.Duration) {
	n, err := s.ws.Sweep(olderThan)
	if err != nil {
		s.logger.Warn().Err(err).Msg("sweep failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int("removed", n).Msg("swept orphaned artifacts")
	}
}
