package saga

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically force-compensates sagas past their deadline and
// evicts terminal sagas past retention. It is the second writer to the saga
// registry next to the per-order goroutines.
type Sweeper struct {
	orchestrator *Orchestrator
	interval     time.Duration
	logger       zerolog.Logger
}

// NewSweeper constructs a sweeper over the orchestrator's registry.
func NewSweeper(orchestrator *Orchestrator, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sweeper{
		orchestrator: orchestrator,
		interval:     interval,
		logger:       logger,
	}
}

// Run sweeps on a fixed schedule until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one pass: timeouts first, then eviction.
func (s *Sweeper) Sweep(ctx context.Context) {
	if n := s.orchestrator.HandleTimeouts(ctx); n > 0 {
		s.logger.Info().Int("compensated", n).Msg("timeout sweep forced compensation")
	}
	if n := s.orchestrator.EvictFinished(); n > 0 {
		s.logger.Debug().Int("evicted", n).Msg("evicted terminal sagas")
	}
}
