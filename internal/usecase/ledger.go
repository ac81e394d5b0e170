package usecase

import (
	"context"
	"fmt"

	"credit-settlement/internal/domain"
	"credit-settlement/internal/domain/model"
	"credit-settlement/internal/domain/ports/repository"
)

// ledger is the one place that moves wallet balances. Every caller runs it inside
// its own transaction so the balance change and the ledger row commit together
// with whatever else the caller writes (payment transition, subscription upsert).
type ledger struct {
	wallets repository.WalletRepository
}

func newLedger(wallets repository.WalletRepository) *ledger {
	return &ledger{wallets: wallets}
}

// apply loads or creates the user's wallet and records entry against it.
func (l *ledger) apply(ctx context.Context, tx repository.Tx, userID string, entry model.LedgerEntry) (*model.WalletTransaction, error) {
	if entry.Amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if entry.Direction != model.DirectionAdd && entry.Direction != model.DirectionSubtract {
		return nil, domain.ErrInvalidArgument
	}
	w, err := l.wallets.FindOrCreate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	wt, err := l.wallets.ApplyEntry(ctx, tx, w.ID, entry)
	if err != nil {
		return nil, fmt.Errorf("apply ledger entry: %w", err)
	}
	return wt, nil
}
