package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"credit-settlement/internal/domain/model"
	"credit-settlement/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentCols = `id, user_id, amount, paid_amount, type, status, provider_ref, updated_by, created_at, updated_at, paid_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (` + paymentCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.Amount, p.PaidAmount, p.Type, p.Status, p.ProviderRef, p.UpdatedBy, p.CreatedAt, p.UpdatedAt, p.PaidAt)
	return err
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentCols + ` FROM payments WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

// MarkPaidIfUnpaid is the only UNPAID -> PAID transition. Concurrent callers race on
// the row lock; the loser re-evaluates the WHERE clause against the committed row and
// updates nothing.
func (r *paymentRepo) MarkPaidIfUnpaid(ctx context.Context, tx repository.Tx, m model.MarkPaid) (bool, error) {
	const q = `
UPDATE payments
   SET status='PAID', paid_amount=$2, provider_ref=$3, updated_by=$4, paid_at=$5, updated_at=$5
 WHERE id=$1 AND status='UNPAID';`
	tag, err := execSQL(ctx, r.pool, tx, q, m.PaymentID, m.PaidAmount, m.ProviderRef, m.Actor, m.PaidAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	if err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.PaidAmount, &p.Type, &p.Status, &p.ProviderRef, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt); err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}
