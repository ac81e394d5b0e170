package adapter

import "context"

// CacheInvalidator is told after every settlement or wallet mutation so that read-path
// services drop cached wallet and subscription views for the user. Calls are
// fire-and-forget from the caller's point of view; errors are only logged.
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, ev SettlementEvent) error
}

// SettlementEvent describes what changed for a user.
type SettlementEvent struct {
	UserID    string `json:"user_id"`
	PaymentID string `json:"payment_id,omitempty"`
	Kind      string `json:"kind"` // credits | subscription | wallet
	Credits   int64  `json:"credits"`
}

// BalanceCache is a read-through cache for wallet balances.
type BalanceCache interface {
	GetBalance(ctx context.Context, userID string) (int64, bool, error)
	SetBalance(ctx context.Context, userID string, balance int64) error
}
