package repository

import (
	"context"
	"time"

	"credit-settlement/internal/domain/model"
)

// SubscriptionRepository is the port for the one-per-user subscription row.
type SubscriptionRepository interface {
	FindByUser(ctx context.Context, tx Tx, userID string) (*model.UserSubscription, error)
	// Upsert activates or renews the user's subscription, creating the row if absent.
	Upsert(ctx context.Context, tx Tx, a model.Activation) (*model.UserSubscription, error)
	// DeactivateIfDue flips is_active to false when next_payment_date < now, in one write.
	DeactivateIfDue(ctx context.Context, tx Tx, userID string, now time.Time) (bool, error)
}
