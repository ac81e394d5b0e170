package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Wallet holds a user's prepaid credit balance. Balance always equals the signed
// sum of its WalletTransaction rows.
type Wallet struct {
	ID        string // UUID
	UserID    string // UUID, unique
	Balance   int64  // credit units, never negative
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TransactionDirection string

const (
	DirectionAdd      TransactionDirection = "ADD"
	DirectionSubtract TransactionDirection = "SUBTRACT"
)

type TransactionType string

const (
	TransactionTypeBuyCredits         TransactionType = "buy-credits"
	TransactionTypeBuyCreditsFallback TransactionType = "buy-credits-fallback" // subscription payment that matched no price
	TransactionTypeBuySubscription    TransactionType = "buy-subscription"
	TransactionTypeRefund             TransactionType = "refund"
	TransactionTypeAdminAdjustment    TransactionType = "admin-adjustment"
	TransactionTypeUseServices        TransactionType = "use-services"
)

// WalletTransaction is an immutable ledger row.
type WalletTransaction struct {
	ID           string // ULID, sortable by creation time
	WalletID     string
	Amount       int64 // always positive; Direction carries the sign
	Type         TransactionType
	Direction    TransactionDirection
	Description  string
	CreatedBy    string
	BalanceAfter int64
	CreatedAt    time.Time
}

// Signed returns the amount with the direction applied.
func (t *WalletTransaction) Signed() int64 {
	if t.Direction == DirectionSubtract {
		return -t.Amount
	}
	return t.Amount
}

// LedgerEntry is the request to move a wallet balance and record it.
type LedgerEntry struct {
	Amount      int64
	Direction   TransactionDirection
	Type        TransactionType
	Description string
	CreatedBy   string
}

// NewTransaction materialises an entry against a wallet. BalanceAfter is filled by the store.
func (e LedgerEntry) NewTransaction(walletID string, now time.Time) *WalletTransaction {
	return &WalletTransaction{
		ID:          ulid.Make().String(),
		WalletID:    walletID,
		Amount:      e.Amount,
		Type:        e.Type,
		Direction:   e.Direction,
		Description: e.Description,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   now,
	}
}

// Delta is the signed balance change the entry causes.
func (e LedgerEntry) Delta() int64 {
	if e.Direction == DirectionSubtract {
		return -e.Amount
	}
	return e.Amount
}
