package repository

import (
	"context"

	"credit-settlement/internal/domain/model"
)

// -----------------------------
// Wallets & ledger
// -----------------------------

type WalletRepository interface {
	// FindOrCreate returns the user's wallet, inserting an empty one if absent.
	FindOrCreate(ctx context.Context, tx Tx, userID string) (*model.Wallet, error)
	FindByUser(ctx context.Context, tx Tx, userID string) (*model.Wallet, error)
	// ApplyEntry moves the balance by the entry's signed amount and appends the ledger
	// row as one atomic statement. A debit that would make the balance negative
	// returns domain.ErrInsufficientCredits and changes nothing.
	ApplyEntry(ctx context.Context, tx Tx, walletID string, entry model.LedgerEntry) (*model.WalletTransaction, error)
	ListTransactions(ctx context.Context, tx Tx, walletID string, limit int) ([]*model.WalletTransaction, error)
}
