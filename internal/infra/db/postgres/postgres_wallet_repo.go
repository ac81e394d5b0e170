package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"credit-settlement/internal/domain"
	"credit-settlement/internal/domain/model"
	"credit-settlement/internal/domain/ports/repository"
)

var _ repository.WalletRepository = (*walletRepo)(nil)

type walletRepo struct{ pool *pgxpool.Pool }

func NewWalletRepo(pool *pgxpool.Pool) *walletRepo {
	return &walletRepo{pool: pool}
}

const walletCols = `id, user_id, balance, created_at, updated_at`

func (r *walletRepo) FindOrCreate(ctx context.Context, tx repository.Tx, userID string) (*model.Wallet, error) {
	const ins = `INSERT INTO wallets (id, user_id) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING;`
	if _, err := execSQL(ctx, r.pool, tx, ins, uuid.NewString(), userID); err != nil {
		return nil, err
	}
	return r.FindByUser(ctx, tx, userID)
}

func (r *walletRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Wallet, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+walletCols+` FROM wallets WHERE user_id=$1;`, userID)
	if err != nil {
		return nil, err
	}
	w := &model.Wallet{}
	if err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return w, nil
}

// ApplyEntry moves the balance and appends the ledger row in one statement. The
// balance guard in the UPDATE makes overdraft impossible even under concurrent debits.
func (r *walletRepo) ApplyEntry(ctx context.Context, tx repository.Tx, walletID string, entry model.LedgerEntry) (*model.WalletTransaction, error) {
	const q = `
WITH upd AS (
    UPDATE wallets SET balance = balance + $2, updated_at = $9
     WHERE id = $1 AND balance + $2 >= 0
 RETURNING id, balance
)
INSERT INTO wallet_transactions (id, wallet_id, amount, type, direction, description, created_by, balance_after, created_at)
SELECT $3, upd.id, $4, $5, $6, $7, $8, upd.balance, $9 FROM upd
RETURNING balance_after;`

	wt := entry.NewTransaction(walletID, time.Now().UTC())
	row, err := pickRow(ctx, r.pool, tx, q,
		walletID, entry.Delta(), wt.ID, wt.Amount, wt.Type, wt.Direction, wt.Description, wt.CreatedBy, wt.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := row.Scan(&wt.BalanceAfter); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, mapErr(err)
		}
		if _, ferr := r.findByID(ctx, tx, walletID); ferr != nil {
			return nil, domain.ErrWalletNotFound
		}
		return nil, domain.ErrInsufficientCredits
	}
	return wt, nil
}

func (r *walletRepo) ListTransactions(ctx context.Context, tx repository.Tx, walletID string, limit int) ([]*model.WalletTransaction, error) {
	const q = `
SELECT id, wallet_id, amount, type, direction, description, created_by, balance_after, created_at
  FROM wallet_transactions
 WHERE wallet_id=$1
 ORDER BY id DESC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, walletID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*model.WalletTransaction, 0, limit)
	for rows.Next() {
		t := &model.WalletTransaction{}
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Amount, &t.Type, &t.Direction, &t.Description, &t.CreatedBy, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *walletRepo) findByID(ctx context.Context, tx repository.Tx, id string) (*model.Wallet, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+walletCols+` FROM wallets WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	w := &model.Wallet{}
	if err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return w, nil
}
