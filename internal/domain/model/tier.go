package model

import (
	"sort"

	"credit-settlement/internal/domain"
)

// TierPrice is one row of the static price table.
type TierPrice struct {
	Tier            Tier
	MonthlyPrice    int64 // smallest currency unit
	YearlyPrice     int64
	CreditsPerMonth int64
}

// Benefits is what an active tier grants.
type Benefits struct {
	Tier            Tier  `json:"tier"`
	CreditsPerMonth int64 `json:"credits_per_month"`
}

// PriceTable is immutable after construction; rows are kept ordered from the lowest tier up.
type PriceTable struct {
	rows []TierPrice
}

// NewPriceTable validates rows and orders them by tier rank.
func NewPriceTable(rows []TierPrice) (*PriceTable, error) {
	seen := make(map[Tier]bool, len(rows))
	out := make([]TierPrice, 0, len(rows))
	for _, r := range rows {
		if r.Tier.Rank() <= 0 || seen[r.Tier] {
			return nil, domain.ErrInvalidArgument
		}
		if r.MonthlyPrice <= 0 || r.YearlyPrice <= 0 || r.CreditsPerMonth < 0 {
			return nil, domain.ErrInvalidArgument
		}
		seen[r.Tier] = true
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier.Rank() < out[j].Tier.Rank() })
	return &PriceTable{rows: out}, nil
}

// Rows returns a copy of the table, lowest tier first.
func (pt *PriceTable) Rows() []TierPrice {
	out := make([]TierPrice, len(pt.rows))
	copy(out, pt.rows)
	return out
}

// Benefits returns the benefits of tier; NONE and unknown tiers grant nothing.
func (pt *PriceTable) Benefits(tier Tier) Benefits {
	for _, r := range pt.rows {
		if r.Tier == tier {
			return Benefits{Tier: tier, CreditsPerMonth: r.CreditsPerMonth}
		}
	}
	return Benefits{Tier: TierNone}
}

// DefaultPriceTable is used when configuration supplies no tiers.
func DefaultPriceTable() *PriceTable {
	pt, _ := NewPriceTable([]TierPrice{
		{Tier: TierBasic, MonthlyPrice: 99000, YearlyPrice: 990000, CreditsPerMonth: 100},
		{Tier: TierAdvanced, MonthlyPrice: 199000, YearlyPrice: 1990000, CreditsPerMonth: 250},
		{Tier: TierVIP, MonthlyPrice: 399000, YearlyPrice: 3990000, CreditsPerMonth: 600},
	})
	return pt
}
