package model

import (
	"time"

	"github.com/google/uuid"
)

type Tier string

const (
	TierNone     Tier = "NONE"
	TierBasic    Tier = "BASIC"
	TierAdvanced Tier = "ADVANCED"
	TierVIP      Tier = "VIP"
)

// Rank orders tiers from lowest to highest; unknown tiers rank below NONE.
func (t Tier) Rank() int {
	switch t {
	case TierNone:
		return 0
	case TierBasic:
		return 1
	case TierAdvanced:
		return 2
	case TierVIP:
		return 3
	default:
		return -1
	}
}

func ParseTier(s string) (Tier, bool) {
	t := Tier(s)
	if t.Rank() < 0 {
		return TierNone, false
	}
	return t, true
}

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// Next returns the next payment date for a cycle starting at from.
func (c BillingCycle) Next(from time.Time) time.Time {
	if c == BillingCycleYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

// Months is the number of monthly allotments one payment of this cycle buys.
func (c BillingCycle) Months() int64 {
	if c == BillingCycleYearly {
		return 12
	}
	return 1
}

// UserSubscription is the single subscription row of a user.
type UserSubscription struct {
	ID              string // UUID
	UserID          string // UUID, unique
	Tier            Tier
	BillingCycle    BillingCycle
	IsActive        bool
	LastPaymentDate *time.Time
	NextPaymentDate *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewUserSubscription is the row created at registration: tier NONE, inactive.
func NewUserSubscription(userID string) *UserSubscription {
	now := time.Now()
	return &UserSubscription{
		ID:           uuid.NewString(),
		UserID:       userID,
		Tier:         TierNone,
		BillingCycle: BillingCycleMonthly,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsDue reports whether the subscription is marked active but its next payment date has passed.
func (s *UserSubscription) IsDue(now time.Time) bool {
	return s.IsActive && s.NextPaymentDate != nil && s.NextPaymentDate.Before(now)
}

// Activation is the upsert applied by subscription settlement.
type Activation struct {
	UserID          string
	Tier            Tier
	BillingCycle    BillingCycle
	LastPaymentDate time.Time
	NextPaymentDate time.Time
}

// NewActivation computes the dates for a payment received at now.
func NewActivation(userID string, tier Tier, cycle BillingCycle, now time.Time) Activation {
	return Activation{
		UserID:          userID,
		Tier:            tier,
		BillingCycle:    cycle,
		LastPaymentDate: now,
		NextPaymentDate: cycle.Next(now),
	}
}
