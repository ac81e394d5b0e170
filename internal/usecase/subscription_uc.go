package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"credit-settlement/internal/domain"
	"credit-settlement/internal/domain/model"
	"credit-settlement/internal/domain/ports/repository"
	"credit-settlement/internal/infra/logging"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionView is the read model served to the product surface.
type SubscriptionView struct {
	UserID          string             `json:"user_id"`
	Tier            model.Tier         `json:"tier"`
	BillingCycle    model.BillingCycle `json:"billing_cycle"`
	IsActive        bool               `json:"is_active"`
	NextPaymentDate *time.Time         `json:"next_payment_date,omitempty"`
	Benefits        model.Benefits     `json:"benefits"`
}

type SubscriptionUseCase interface {
	// GetSubscriptionBenefits returns the user's effective tier. A subscription past its
	// next payment date is deactivated first and reported with NONE benefits.
	GetSubscriptionBenefits(ctx context.Context, userID string) (*SubscriptionView, error)
	HasActiveSubscription(ctx context.Context, userID string) (bool, error)
}

type subscriptionUC struct {
	subs   repository.SubscriptionRepository
	prices *model.PriceTable
	log    *zerolog.Logger
	now    func() time.Time
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, prices *model.PriceTable, logger *zerolog.Logger) *subscriptionUC {
	return &subscriptionUC{subs: subs, prices: prices, log: logger, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (u *subscriptionUC) WithClock(now func() time.Time) *subscriptionUC {
	u.now = now
	return u
}

func (u *subscriptionUC) GetSubscriptionBenefits(ctx context.Context, userID string) (*SubscriptionView, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.GetSubscriptionBenefits")()

	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := u.now()
	if deactivated, err := u.subs.DeactivateIfDue(ctx, repository.NoTX, userID, now); err != nil {
		return nil, err
	} else if deactivated {
		u.log.Info().Str("user_id", userID).Msg("subscription lapsed, deactivated")
	}

	s, err := u.subs.FindByUser(ctx, repository.NoTX, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return &SubscriptionView{
			UserID:       userID,
			Tier:         model.TierNone,
			BillingCycle: model.BillingCycleMonthly,
			Benefits:     u.prices.Benefits(model.TierNone),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	// The row may have lapsed between the deactivation write and this read.
	active := s.IsActive && !s.IsDue(now)
	tier := s.Tier
	if !active {
		tier = model.TierNone
	}
	return &SubscriptionView{
		UserID:          userID,
		Tier:            tier,
		BillingCycle:    s.BillingCycle,
		IsActive:        active,
		NextPaymentDate: s.NextPaymentDate,
		Benefits:        u.prices.Benefits(tier),
	}, nil
}

func (u *subscriptionUC) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	v, err := u.GetSubscriptionBenefits(ctx, userID)
	if err != nil {
		return false, err
	}
	return v.IsActive, nil
}
