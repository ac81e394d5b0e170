package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"credit-settlement/internal/domain"
	"credit-settlement/internal/domain/model"
	"credit-settlement/internal/domain/ports/repository"
)

// Compile-time check
var _ ReconciliationUseCase = (*reconciliationUC)(nil)

// ReconciliationUseCase serves the manual review queue fed by the settlement engine.
type ReconciliationUseCase interface {
	ListOpen(ctx context.Context, limit int) ([]*model.ReconciliationFlag, error)
	Resolve(ctx context.Context, id, by string) error
}

type reconciliationUC struct {
	flags repository.ReconciliationRepository
	log   *zerolog.Logger
}

func NewReconciliationUseCase(flags repository.ReconciliationRepository, logger *zerolog.Logger) *reconciliationUC {
	return &reconciliationUC{flags: flags, log: logger}
}

func (u *reconciliationUC) ListOpen(ctx context.Context, limit int) ([]*model.ReconciliationFlag, error) {
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}
	return u.flags.ListOpen(ctx, repository.NoTX, limit)
}

func (u *reconciliationUC) Resolve(ctx context.Context, id, by string) error {
	if id == "" || by == "" {
		return domain.ErrInvalidArgument
	}
	ok, err := u.flags.Resolve(ctx, repository.NoTX, id, by, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	u.log.Info().Str("flag_id", id).Str("resolved_by", by).Msg("reconciliation flag resolved")
	return nil
}
