package redis

import (
	"context"
	"strconv"
	"time"

	"credit-settlement/internal/domain/ports/adapter"
	"credit-settlement/internal/infra/metrics"
)

var _ adapter.BalanceCache = (*BalanceCache)(nil)

type BalanceCache struct {
	cache RedisClient
	ttl   time.Duration
}

func NewBalanceCache(c RedisClient, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &BalanceCache{cache: c, ttl: ttl}
}

func (b *BalanceCache) GetBalance(ctx context.Context, userID string) (int64, bool, error) {
	val, err := b.cache.Get(ctx, BalanceKey(userID))
	if IsMiss(err) {
		metrics.IncCacheRequest("balance", "miss")
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	bal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// Unreadable entry: treat as a miss so the caller refills it.
		metrics.IncCacheRequest("balance", "miss")
		return 0, false, nil
	}
	metrics.IncCacheRequest("balance", "hit")
	return bal, true, nil
}

func (b *BalanceCache) SetBalance(ctx context.Context, userID string, balance int64) error {
	return b.cache.Set(ctx, BalanceKey(userID), strconv.FormatInt(balance, 10), b.ttl)
}
