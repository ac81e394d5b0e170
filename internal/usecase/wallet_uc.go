package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"credit-settlement/internal/domain"
	"credit-settlement/internal/domain/model"
	"credit-settlement/internal/domain/ports/adapter"
	"credit-settlement/internal/domain/ports/repository"
	"credit-settlement/internal/infra/logging"
)

// Compile-time check
var _ WalletUseCase = (*walletUC)(nil)

const maxHistory = 200

type WalletUseCase interface {
	// Balance returns the user's credit balance; users without a wallet have zero.
	Balance(ctx context.Context, userID string) (int64, error)
	History(ctx context.Context, userID string, limit int) ([]*model.WalletTransaction, error)
	// Debit consumes credits for service usage. It never overdraws the wallet.
	Debit(ctx context.Context, userID string, amount int64, description, actor string) (*model.WalletTransaction, error)
	// Adjust records an admin correction or refund; delta carries the sign.
	Adjust(ctx context.Context, userID string, delta int64, typ model.TransactionType, description, actor string) (*model.WalletTransaction, error)
}

type walletUC struct {
	wallets     repository.WalletRepository
	tm          repository.TransactionManager
	ledger      *ledger
	cache       adapter.BalanceCache     // optional
	invalidator adapter.CacheInvalidator // optional
	log         *zerolog.Logger
}

func NewWalletUseCase(
	wallets repository.WalletRepository,
	tm repository.TransactionManager,
	cache adapter.BalanceCache,
	invalidator adapter.CacheInvalidator,
	logger *zerolog.Logger,
) *walletUC {
	return &walletUC{
		wallets:     wallets,
		tm:          tm,
		ledger:      newLedger(wallets),
		cache:       cache,
		invalidator: invalidator,
		log:         logger,
	}
}

func (u *walletUC) Balance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, domain.ErrInvalidArgument
	}
	if u.cache != nil {
		if bal, ok, err := u.cache.GetBalance(ctx, userID); err != nil {
			u.log.Warn().Err(err).Str("user_id", userID).Msg("balance cache read failed")
		} else if ok {
			return bal, nil
		}
	}
	var bal int64
	w, err := u.wallets.FindByUser(ctx, repository.NoTX, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return 0, err
	default:
		bal = w.Balance
	}
	if u.cache != nil {
		if err := u.cache.SetBalance(ctx, userID, bal); err != nil {
			u.log.Warn().Err(err).Str("user_id", userID).Msg("balance cache write failed")
		}
	}
	return bal, nil
}

func (u *walletUC) History(ctx context.Context, userID string, limit int) ([]*model.WalletTransaction, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}
	w, err := u.wallets.FindByUser(ctx, repository.NoTX, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return []*model.WalletTransaction{}, nil
	}
	if err != nil {
		return nil, err
	}
	return u.wallets.ListTransactions(ctx, repository.NoTX, w.ID, limit)
}

func (u *walletUC) Debit(ctx context.Context, userID string, amount int64, description, actor string) (*model.WalletTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return u.mutate(ctx, userID, model.LedgerEntry{
		Amount:      amount,
		Direction:   model.DirectionSubtract,
		Type:        model.TransactionTypeUseServices,
		Description: description,
		CreatedBy:   actor,
	})
}

func (u *walletUC) Adjust(ctx context.Context, userID string, delta int64, typ model.TransactionType, description, actor string) (*model.WalletTransaction, error) {
	if delta == 0 {
		return nil, domain.ErrInvalidArgument
	}
	if typ != model.TransactionTypeAdminAdjustment && typ != model.TransactionTypeRefund {
		return nil, fmt.Errorf("adjustment type %q: %w", typ, domain.ErrInvalidArgument)
	}
	entry := model.LedgerEntry{
		Amount:      delta,
		Direction:   model.DirectionAdd,
		Type:        typ,
		Description: description,
		CreatedBy:   actor,
	}
	if delta < 0 {
		entry.Amount = -delta
		entry.Direction = model.DirectionSubtract
	}
	return u.mutate(ctx, userID, entry)
}

func (u *walletUC) mutate(ctx context.Context, userID string, entry model.LedgerEntry) (*model.WalletTransaction, error) {
	defer logging.TraceDuration(u.log, "WalletUC.mutate")()

	if userID == "" || entry.CreatedBy == "" {
		return nil, domain.ErrInvalidArgument
	}
	var wt *model.WalletTransaction
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		wt, err = u.ledger.apply(ctx, tx, userID, entry)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			u.log.Info().Str("user_id", userID).Int64("amount", entry.Amount).Msg("debit rejected, insufficient credits")
		}
		return nil, err
	}
	u.log.Info().
		Str("user_id", userID).
		Str("type", string(entry.Type)).
		Int64("delta", entry.Delta()).
		Int64("balance_after", wt.BalanceAfter).
		Msg("wallet entry recorded")
	invalidateUser(ctx, u.invalidator, u.log, adapter.SettlementEvent{UserID: userID, Kind: "wallet", Credits: entry.Delta()})
	return wt, nil
}
