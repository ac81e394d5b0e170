package postgres

import (
	"context"
	"encoding/json"
	"time"

	"credit-settlement/internal/domain/model"
	"credit-settlement/internal/domain/ports/repository"
	"credit-settlement/internal/infra/metrics"
	red "credit-settlement/internal/infra/redis"
)

var _ repository.SubscriptionRepository = (*subscriptionRepoCacheDecorator)(nil)

// subscriptionRepoCacheDecorator serves FindByUser from Redis outside transactions.
// Writes drop the key; the settlement invalidator drops it again after commit.
type subscriptionRepoCacheDecorator struct {
	inner repository.SubscriptionRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewSubscriptionRepoCacheDecorator(inner repository.SubscriptionRepository, cache red.RedisClient, ttl time.Duration) repository.SubscriptionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &subscriptionRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func (d *subscriptionRepoCacheDecorator) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.UserSubscription, error) {
	if tx != nil {
		return d.inner.FindByUser(ctx, tx, userID)
	}
	key := red.SubscriptionKey(userID)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var s model.UserSubscription
		if json.Unmarshal([]byte(val), &s) == nil {
			metrics.IncCacheRequest("subscription", "hit")
			return &s, nil
		}
	}

	metrics.IncCacheRequest("subscription", "miss")
	s, err := d.inner.FindByUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(s); err == nil {
		_ = d.cache.Set(ctx, key, string(b), d.ttl)
	}
	return s, nil
}

func (d *subscriptionRepoCacheDecorator) Upsert(ctx context.Context, tx repository.Tx, a model.Activation) (*model.UserSubscription, error) {
	_ = d.cache.Del(ctx, red.SubscriptionKey(a.UserID))
	return d.inner.Upsert(ctx, tx, a)
}

func (d *subscriptionRepoCacheDecorator) DeactivateIfDue(ctx context.Context, tx repository.Tx, userID string, now time.Time) (bool, error) {
	changed, err := d.inner.DeactivateIfDue(ctx, tx, userID, now)
	if err == nil && changed {
		_ = d.cache.Del(ctx, red.SubscriptionKey(userID))
	}
	return changed, err
}
