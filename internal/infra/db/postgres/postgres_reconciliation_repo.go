package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"credit-settlement/internal/domain"
	"credit-settlement/internal/domain/model"
	"credit-settlement/internal/domain/ports/repository"
)

var _ repository.ReconciliationRepository = (*reconciliationRepo)(nil)

type reconciliationRepo struct{ pool *pgxpool.Pool }

func NewReconciliationRepo(pool *pgxpool.Pool) *reconciliationRepo {
	return &reconciliationRepo{pool: pool}
}

const flagCols = `id, reason, payment_id, provider_ref, provider_id, amount, expected_amount, content, note, created_at, resolved_at, resolved_by`

func (r *reconciliationRepo) Save(ctx context.Context, tx repository.Tx, f *model.ReconciliationFlag) error {
	const q = `INSERT INTO reconciliation_flags (` + flagCols + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	_, err := execSQL(ctx, r.pool, tx, q,
		f.ID, f.Reason, f.PaymentID, f.ProviderRef, f.ProviderID, f.Amount, f.ExpectedAmount, f.Content, f.Note, f.CreatedAt, f.ResolvedAt, f.ResolvedBy)
	return err
}

func (r *reconciliationRepo) ListOpen(ctx context.Context, tx repository.Tx, limit int) ([]*model.ReconciliationFlag, error) {
	q := `SELECT ` + flagCols + ` FROM reconciliation_flags WHERE resolved_at IS NULL ORDER BY created_at, id LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ReconciliationFlag
	for rows.Next() {
		f := &model.ReconciliationFlag{}
		if err := rows.Scan(&f.ID, &f.Reason, &f.PaymentID, &f.ProviderRef, &f.ProviderID, &f.Amount, &f.ExpectedAmount, &f.Content, &f.Note, &f.CreatedAt, &f.ResolvedAt, &f.ResolvedBy); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *reconciliationRepo) Resolve(ctx context.Context, tx repository.Tx, id, by string, at time.Time) (bool, error) {
	const q = `UPDATE reconciliation_flags SET resolved_at=$2, resolved_by=$3 WHERE id=$1 AND resolved_at IS NULL;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, at, by)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
