package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"credit-settlement/internal/domain/model"
	"credit-settlement/internal/domain/ports/repository"
	"credit-settlement/internal/infra/logging"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	// Create records an UNPAID payment and returns the memo the payer must put in the transfer content.
	Create(ctx context.Context, userID string, amount int64, typ model.PaymentType) (*model.Payment, string, error)
	Get(ctx context.Context, id string) (*model.Payment, error)
}

type paymentUC struct {
	payments repository.PaymentRepository
	codec    *MemoCodec
	log      *zerolog.Logger
}

func NewPaymentUseCase(payments repository.PaymentRepository, codec *MemoCodec, logger *zerolog.Logger) *paymentUC {
	return &paymentUC{payments: payments, codec: codec, log: logger}
}

func (u *paymentUC) Create(ctx context.Context, userID string, amount int64, typ model.PaymentType) (*model.Payment, string, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Create")()

	p, err := model.NewPayment(userID, amount, typ)
	if err != nil {
		return nil, "", err
	}
	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		return nil, "", fmt.Errorf("save payment: %w", err)
	}
	memo := u.codec.Encode(p.ID)
	u.log.Info().Str("payment_id", p.ID).Str("user_id", userID).Int64("amount", amount).Str("type", string(typ)).Msg("payment created")
	return p, memo, nil
}

func (u *paymentUC) Get(ctx context.Context, id string) (*model.Payment, error) {
	return u.payments.FindByID(ctx, repository.NoTX, id)
}
