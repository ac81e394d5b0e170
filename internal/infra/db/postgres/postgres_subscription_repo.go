package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"credit-settlement/internal/domain/model"
	"credit-settlement/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionCols = `id, user_id, tier, billing_cycle, is_active, last_payment_date, next_payment_date, created_at, updated_at`

func (r *subscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.UserSubscription, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+subscriptionCols+` FROM user_subscriptions WHERE user_id=$1;`, userID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, a model.Activation) (*model.UserSubscription, error) {
	const q = `
INSERT INTO user_subscriptions (` + subscriptionCols + `)
VALUES ($1, $2, $3, $4, TRUE, $5, $6, $5, $5)
ON CONFLICT (user_id) DO UPDATE SET
  tier = EXCLUDED.tier,
  billing_cycle = EXCLUDED.billing_cycle,
  is_active = TRUE,
  last_payment_date = EXCLUDED.last_payment_date,
  next_payment_date = EXCLUDED.next_payment_date,
  updated_at = EXCLUDED.updated_at
RETURNING ` + subscriptionCols + `;`
	row, err := pickRow(ctx, r.pool, tx, q, uuid.NewString(), a.UserID, a.Tier, a.BillingCycle, a.LastPaymentDate, a.NextPaymentDate)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) DeactivateIfDue(ctx context.Context, tx repository.Tx, userID string, now time.Time) (bool, error) {
	const q = `
UPDATE user_subscriptions SET is_active = FALSE, updated_at = $2
 WHERE user_id = $1 AND is_active AND next_payment_date < $2;`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanSubscription(row pgx.Row) (*model.UserSubscription, error) {
	s := &model.UserSubscription{}
	if err := row.Scan(&s.ID, &s.UserID, &s.Tier, &s.BillingCycle, &s.IsActive, &s.LastPaymentDate, &s.NextPaymentDate, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return s, nil
}
