package notify

import (
	"context"
	"errors"
	"fmt"

	"credit-settlement/internal/domain/ports/adapter"
	"credit-settlement/internal/infra/metrics"
)

var _ adapter.CacheInvalidator = (*Fanout)(nil)

// Target is one named invalidation backend.
type Target struct {
	Name        string
	Invalidator adapter.CacheInvalidator
}

// Fanout calls every target and reports all failures together. A failing backend
// never stops the others from being told.
type Fanout struct {
	targets []Target
}

func NewFanout(targets ...Target) *Fanout {
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		if t.Invalidator != nil {
			out = append(out, t)
		}
	}
	return &Fanout{targets: out}
}

func (f *Fanout) InvalidateUser(ctx context.Context, ev adapter.SettlementEvent) error {
	var errs []error
	for _, t := range f.targets {
		if err := t.Invalidator.InvalidateUser(ctx, ev); err != nil {
			metrics.IncInvalidationFailure(t.Name)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}
