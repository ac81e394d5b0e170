package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"credit-settlement/internal/infra/metrics"
)

// PoolStats is the subset of *pgxpool.Stat the sampler reads.
type PoolStats interface {
	MaxConns() int32
	TotalConns() int32
	IdleConns() int32
	AcquiredConns() int32
}

// PoolStatsSampler periodically copies connection pool counters into the db_pool_stats gauge.
type PoolStatsSampler struct {
	interval time.Duration
	stat     func() PoolStats
	log      *zerolog.Logger
}

func NewPoolStatsSampler(interval time.Duration, stat func() PoolStats, logger *zerolog.Logger) *PoolStatsSampler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	l := logger.With().Str("component", "PoolStatsSampler").Logger()
	return &PoolStatsSampler{interval: interval, stat: stat, log: &l}
}

// Run samples once immediately and then on every tick until ctx is done.
func (w *PoolStatsSampler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting pool stats sampler")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sample()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping pool stats sampler")
			return ctx.Err()
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w *PoolStatsSampler) sample() {
	s := w.stat()
	if s == nil {
		return
	}
	metrics.SetDBPoolStats(s.MaxConns(), s.TotalConns(), s.IdleConns(), s.AcquiredConns())
}
