package repository

import (
	"context"

	"credit-settlement/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	// MarkPaidIfUnpaid is the settlement guard: a single conditional update that moves
	// the payment from UNPAID to PAID. It returns false when the payment was not UNPAID
	// (already settled by a concurrent delivery, canceled or overdue).
	MarkPaidIfUnpaid(ctx context.Context, tx Tx, m model.MarkPaid) (bool, error)
}
