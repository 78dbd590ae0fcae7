package token

import (
	"context"
	"time"

	"github.com/jrsteele09/go-token-authority/internal/metrics"
	"github.com/rs/zerolog"
)

const DefaultPruneInterval = time.Hour

// Pruner is the part of Store the sweeper needs.
type Pruner interface {
	PruneExpired(ctx context.Context) (int, error)
}

// Sweeper deletes expired tokens on a fixed interval.
type Sweeper struct {
	pruner   Pruner
	interval time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	extra    []func() int
}

type SweeperOption func(*Sweeper)

func WithSweeperLogger(logger zerolog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithSweeperMetrics(m *metrics.Metrics) SweeperOption {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// WithCleanup runs fn on every sweep, e.g. an in-memory blacklist's Cleanup.
func WithCleanup(fn func() int) SweeperOption {
	return func(s *Sweeper) {
		s.extra = append(s.extra, fn)
	}
}

func NewSweeper(pruner Pruner, interval time.Duration, options ...SweeperOption) *Sweeper {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	s := &Sweeper{
		pruner:   pruner,
		interval: interval,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Run sweeps until ctx is cancelled. It always returns nil; prune failures are
// logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one prune pass and returns the number of tokens removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	pruned, err := s.pruner.PruneExpired(ctx)
	if err != nil {
		s.logger.Err(err).Msg("prune expired tokens failed")
		return 0
	}
	s.metrics.AddPruned(pruned)
	for _, fn := range s.extra {
		fn()
	}
	if pruned > 0 {
		s.logger.Info().Int("pruned", pruned).Msg("pruned expired tokens")
	}
	return pruned
}
