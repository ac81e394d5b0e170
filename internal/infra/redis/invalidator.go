package redis

import (
	"context"

	"credit-settlement/internal/domain/ports/adapter"
)

var _ adapter.CacheInvalidator = (*Invalidator)(nil)

// Invalidator drops the cached balance and subscription of a user after a commit.
type Invalidator struct {
	cache RedisClient
}

func NewInvalidator(c RedisClient) *Invalidator {
	return &Invalidator{cache: c}
}

func (i *Invalidator) InvalidateUser(ctx context.Context, ev adapter.SettlementEvent) error {
	if ev.UserID == "" {
		return nil
	}
	return i.cache.Del(ctx, BalanceKey(ev.UserID), SubscriptionKey(ev.UserID))
}
