package repository

import (
	"context"
	"time"

	"credit-settlement/internal/domain/model"
)

type ReconciliationRepository interface {
	Save(ctx context.Context, tx Tx, f *model.ReconciliationFlag) error
	ListOpen(ctx context.Context, tx Tx, limit int) ([]*model.ReconciliationFlag, error)
	Resolve(ctx context.Context, tx Tx, id, by string, at time.Time) (bool, error)
}
