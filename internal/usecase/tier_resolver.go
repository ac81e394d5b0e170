package usecase

import "credit-settlement/internal/domain/model"

// TierMatch is a price point that a received amount settled against.
type TierMatch struct {
	Tier         model.Tier
	BillingCycle model.BillingCycle
	Price        int64
}

// TierResolver maps a received amount to a subscription price point.
// It is pure: the price table is immutable and no I/O happens.
type TierResolver struct {
	table        *model.PriceTable
	tolerancePct int64
}

// NewTierResolver builds a resolver. tolerancePct widens every price into the band
// [price*(100-t)/100, price*(100+t)/100]; 0 means exact match.
func NewTierResolver(table *model.PriceTable, tolerancePct int64) *TierResolver {
	if tolerancePct < 0 {
		tolerancePct = 0
	}
	return &TierResolver{table: table, tolerancePct: tolerancePct}
}

// Resolve returns the lowest tier whose monthly or yearly price band contains amount.
// Within a tier the monthly price is tried before the yearly one.
func (r *TierResolver) Resolve(amount int64) (TierMatch, bool) {
	if amount <= 0 || r.table == nil {
		return TierMatch{Tier: model.TierNone}, false
	}
	for _, row := range r.table.Rows() {
		if r.within(amount, row.MonthlyPrice) {
			return TierMatch{Tier: row.Tier, BillingCycle: model.BillingCycleMonthly, Price: row.MonthlyPrice}, true
		}
		if r.within(amount, row.YearlyPrice) {
			return TierMatch{Tier: row.Tier, BillingCycle: model.BillingCycleYearly, Price: row.YearlyPrice}, true
		}
	}
	return TierMatch{Tier: model.TierNone}, false
}

func (r *TierResolver) within(amount, price int64) bool {
	if r.tolerancePct == 0 {
		return amount == price
	}
	lo := price * (100 - r.tolerancePct) / 100
	hi := price * (100 + r.tolerancePct) / 100
	return amount >= lo && amount <= hi
}
