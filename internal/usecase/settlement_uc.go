package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"credit-settlement/internal/domain"
	"credit-settlement/internal/domain/model"
	"credit-settlement/internal/domain/ports/adapter"
	"credit-settlement/internal/domain/ports/repository"
	"credit-settlement/internal/infra/logging"
)

// Compile-time check
var _ SettlementUseCase = (*settlementUC)(nil)

// SettlementUseCase turns bank transfer notifications into wallet and subscription changes.
type SettlementUseCase interface {
	// HandleNotification settles the payment referenced by n at most once.
	// The returned result is never nil. A non-nil error is returned for an
	// authentication failure (domain.ErrUnauthorized), an unknown payment
	// (domain.ErrPaymentNotFound) and transient storage failures; duplicates and
	// canceled/overdue payments are reported through result.Outcome only.
	HandleNotification(ctx context.Context, n *model.TransferNotification, presentedKey string) (*model.SettlementResult, error)
}

// SettlementConfig is the immutable settlement policy injected at startup.
type SettlementConfig struct {
	APIKey             string
	Actor              string
	CreditExchangeRate int64 // currency units per credit
	MinAcceptPercent   int64 // received/expected below this is settled but flagged
}

// SettlementDeps groups the stores the settlement engine writes to.
type SettlementDeps struct {
	Payments       repository.PaymentRepository
	Wallets        repository.WalletRepository
	Subscriptions  repository.SubscriptionRepository
	Reconciliation repository.ReconciliationRepository
	TxManager      repository.TransactionManager
	Invalidator    adapter.CacheInvalidator // optional
}

type settlementUC struct {
	cfg         SettlementConfig
	codec       *MemoCodec
	tiers       *TierResolver
	prices      *model.PriceTable
	payments    repository.PaymentRepository
	subs        repository.SubscriptionRepository
	flags       repository.ReconciliationRepository
	tm          repository.TransactionManager
	ledger      *ledger
	invalidator adapter.CacheInvalidator
	log         *zerolog.Logger
	now         func() time.Time
}

// errLostRace aborts the settlement transaction when the guarded update matched no row.
var errLostRace = errors.New("payment left UNPAID before settlement")

func NewSettlementUseCase(
	deps SettlementDeps,
	cfg SettlementConfig,
	codec *MemoCodec,
	tiers *TierResolver,
	prices *model.PriceTable,
	logger *zerolog.Logger,
) *settlementUC {
	if cfg.CreditExchangeRate <= 0 {
		cfg.CreditExchangeRate = 1000
	}
	if cfg.MinAcceptPercent <= 0 {
		cfg.MinAcceptPercent = 95
	}
	if cfg.Actor == "" {
		cfg.Actor = "SEPAY_WEBHOOK"
	}
	l := logger.With().Str("component", "SettlementUC").Logger()
	return &settlementUC{
		cfg:         cfg,
		codec:       codec,
		tiers:       tiers,
		prices:      prices,
		payments:    deps.Payments,
		subs:        deps.Subscriptions,
		flags:       deps.Reconciliation,
		tm:          deps.TxManager,
		ledger:      newLedger(deps.Wallets),
		invalidator: deps.Invalidator,
		log:         &l,
		now:         time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (u *settlementUC) WithClock(now func() time.Time) *settlementUC {
	u.now = now
	return u
}

func (u *settlementUC) HandleNotification(ctx context.Context, n *model.TransferNotification, presentedKey string) (*model.SettlementResult, error) {
	defer logging.TraceDuration(u.log, "SettlementUC.HandleNotification")()

	if !u.authenticate(presentedKey) {
		return &model.SettlementResult{Outcome: model.OutcomeUnauthorized, Message: "unauthorized"}, domain.ErrUnauthorized
	}
	if n == nil {
		return &model.SettlementResult{Outcome: model.OutcomeFailed, Message: "empty notification"}, domain.ErrInvalidArgument
	}
	log := logging.With(ctx, u.log).With().
		Int64("provider_id", n.ID).
		Str("reference", n.ReferenceCode).
		Int64("amount", n.TransferAmount).
		Logger()

	if !n.IsInbound() {
		log.Debug().Str("transfer_type", string(n.TransferType)).Msg("outbound transfer ignored")
		return &model.SettlementResult{Accepted: true, Outcome: model.OutcomeIgnored, Message: "outbound transfer ignored"}, nil
	}
	if n.TransferAmount <= 0 {
		log.Warn().Msg("inbound transfer without a positive amount ignored")
		return &model.SettlementResult{Accepted: true, Outcome: model.OutcomeIgnored, Message: "no amount"}, nil
	}

	paymentID, ok := u.codec.Extract(n.Content)
	if !ok {
		log.Warn().Msg("no payment id in transfer content, flagged for reconciliation")
		u.flag(ctx, model.NewReconciliationFlag(model.ReasonUnparsableMemo, n, "no payment id in transfer content"))
		return &model.SettlementResult{Outcome: model.OutcomeUnparsable, Message: "payment id not found in content"}, nil
	}
	ctx = logging.WithPaymentID(ctx, paymentID)
	log = log.With().Str("payment_id", paymentID).Logger()

	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Error().Msg("transfer references an unknown payment")
			f := model.NewReconciliationFlag(model.ReasonPaymentNotFound, n, "unknown payment id")
			f.PaymentID = &paymentID
			u.flag(ctx, f)
			return &model.SettlementResult{Outcome: model.OutcomeNotFound, Message: "payment not found", PaymentID: paymentID}, domain.ErrPaymentNotFound
		}
		log.Error().Err(err).Msg("load payment failed")
		return &model.SettlementResult{Outcome: model.OutcomeFailed, Message: "storage error", PaymentID: paymentID}, fmt.Errorf("load payment: %w", err)
	}
	log = log.With().Str("user_id", p.UserID).Logger()

	if err := p.SettleCheck(); err != nil {
		return u.conflict(ctx, &log, p, n, err), nil
	}

	res, err := u.settle(ctx, p, n)
	if errors.Is(err, errLostRace) {
		// Another delivery won the guarded update; report what it left behind.
		cur, ferr := u.payments.FindByID(ctx, repository.NoTX, p.ID)
		if ferr != nil {
			log.Error().Err(ferr).Msg("reload payment after lost race failed")
			return &model.SettlementResult{Outcome: model.OutcomeFailed, Message: "storage error", PaymentID: p.ID}, fmt.Errorf("reload payment: %w", ferr)
		}
		cerr := cur.SettleCheck()
		if cerr == nil {
			cerr = domain.ErrPaymentAlreadyProcessed
		}
		return u.conflict(ctx, &log, cur, n, cerr), nil
	}
	if err != nil {
		log.Error().Err(err).Msg("settlement failed, transaction rolled back")
		return &model.SettlementResult{Outcome: model.OutcomeFailed, Message: "storage error", PaymentID: p.ID, UserID: p.UserID}, err
	}

	ev := log.Info().
		Str("outcome", string(res.Outcome)).
		Int64("credits", res.CreditsGranted).
		Bool("flagged_review", res.FlaggedReview)
	if res.Tier != "" {
		ev = ev.Str("tier", string(res.Tier)).Str("cycle", string(res.BillingCycle))
	}
	ev.Msg("payment settled")

	kind := string(p.Type)
	if res.Outcome == model.OutcomeFallback {
		kind = "credits"
	}
	u.invalidate(ctx, adapter.SettlementEvent{UserID: p.UserID, PaymentID: p.ID, Kind: kind, Credits: res.CreditsGranted})
	return res, nil
}

// settle runs the guarded transition and the matching settlement path as one transaction.
func (u *settlementUC) settle(ctx context.Context, p *model.Payment, n *model.TransferNotification) (*model.SettlementResult, error) {
	now := u.now()
	received := n.TransferAmount
	res := &model.SettlementResult{
		Accepted:      true,
		Outcome:       model.OutcomeSettled,
		Message:       "payment settled",
		PaymentID:     p.ID,
		UserID:        p.UserID,
		FlaggedReview: received*100 < p.Amount*u.cfg.MinAcceptPercent,
	}

	var match TierMatch
	var matched bool
	if p.Type == model.PaymentTypeSubscription {
		match, matched = u.tiers.Resolve(received)
		if !matched {
			res.Outcome = model.OutcomeFallback
			res.Message = "amount matches no subscription price, settled as credits"
		}
	}

	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.payments.MarkPaidIfUnpaid(ctx, tx, model.MarkPaid{
			PaymentID:   p.ID,
			PaidAmount:  received,
			ProviderRef: n.ReferenceCode,
			Actor:       u.cfg.Actor,
			PaidAt:      now,
		})
		if err != nil {
			return fmt.Errorf("mark payment paid: %w", err)
		}
		if !ok {
			return errLostRace
		}

		switch {
		case p.Type == model.PaymentTypeSubscription && matched:
			credits, err := u.settleSubscription(ctx, tx, p, match, now)
			if err != nil {
				return err
			}
			res.CreditsGranted = credits
			res.Tier = match.Tier
			res.BillingCycle = match.BillingCycle
		case p.Type == model.PaymentTypeSubscription:
			credits, err := u.settleCredits(ctx, tx, p, received, true)
			if err != nil {
				return err
			}
			res.CreditsGranted = credits
		case p.Type == model.PaymentTypeCredits:
			credits, err := u.settleCredits(ctx, tx, p, received, false)
			if err != nil {
				return err
			}
			res.CreditsGranted = credits
		default:
			return fmt.Errorf("payment type %q: %w", p.Type, domain.ErrInvalidArgument)
		}

		if res.FlaggedReview {
			f := model.NewReconciliationFlag(model.ReasonUnderpaid, n,
				fmt.Sprintf("received %d of expected %d", received, p.Amount))
			f.PaymentID = &p.ID
			f.ExpectedAmount = &p.Amount
			if err := u.flags.Save(ctx, tx, f); err != nil {
				return fmt.Errorf("flag underpayment: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// settleCredits converts received money into credits at the configured rate.
func (u *settlementUC) settleCredits(ctx context.Context, tx repository.Tx, p *model.Payment, received int64, fallback bool) (int64, error) {
	credits := received / u.cfg.CreditExchangeRate
	if credits <= 0 {
		u.log.Warn().Str("payment_id", p.ID).Int64("amount", received).Msg("amount below one credit, nothing granted")
		return 0, nil
	}
	entry := model.LedgerEntry{
		Amount:      credits,
		Direction:   model.DirectionAdd,
		Type:        model.TransactionTypeBuyCredits,
		Description: fmt.Sprintf("Purchased %d credits for %d (payment %s)", credits, received, p.ID),
		CreatedBy:   u.cfg.Actor,
	}
	if fallback {
		entry.Type = model.TransactionTypeBuyCreditsFallback
		entry.Description = fmt.Sprintf("Subscription payment %s of %d matched no plan price; converted to %d credits", p.ID, received, credits)
	}
	if _, err := u.ledger.apply(ctx, tx, p.UserID, entry); err != nil {
		return 0, err
	}
	return credits, nil
}

// settleSubscription upserts the subscription and grants the cycle's credit allotment.
func (u *settlementUC) settleSubscription(ctx context.Context, tx repository.Tx, p *model.Payment, m TierMatch, now time.Time) (int64, error) {
	act := model.NewActivation(p.UserID, m.Tier, m.BillingCycle, now)
	if _, err := u.subs.Upsert(ctx, tx, act); err != nil {
		return 0, fmt.Errorf("upsert subscription: %w", err)
	}
	credits := u.prices.Benefits(m.Tier).CreditsPerMonth * m.BillingCycle.Months()
	if credits <= 0 {
		return 0, nil
	}
	entry := model.LedgerEntry{
		Amount:    credits,
		Direction: model.DirectionAdd,
		Type:      model.TransactionTypeBuySubscription,
		Description: fmt.Sprintf("%s %s subscription until %s: %d credits (payment %s)",
			m.Tier, m.BillingCycle, act.NextPaymentDate.Format("2006-01-02"), credits, p.ID),
		CreatedBy: u.cfg.Actor,
	}
	if _, err := u.ledger.apply(ctx, tx, p.UserID, entry); err != nil {
		return 0, err
	}
	return credits, nil
}

// conflict acknowledges a delivery for a payment that is no longer UNPAID.
func (u *settlementUC) conflict(ctx context.Context, log *zerolog.Logger, p *model.Payment, n *model.TransferNotification, cause error) *model.SettlementResult {
	if errors.Is(cause, domain.ErrPaymentAlreadyProcessed) {
		log.Warn().Str("status", string(p.Status)).Msg("duplicate delivery for settled payment")
		return &model.SettlementResult{
			Accepted:  true,
			Outcome:   model.OutcomeDuplicate,
			Message:   "payment already processed",
			PaymentID: p.ID,
			UserID:    p.UserID,
		}
	}
	log.Warn().Str("status", string(p.Status)).Msg("transfer for a payment that cannot be settled, flagged for reconciliation")
	f := model.NewReconciliationFlag(model.ReasonNotPayable, n, "payment status "+string(p.Status))
	f.PaymentID = &p.ID
	f.ExpectedAmount = &p.Amount
	u.flag(ctx, f)
	return &model.SettlementResult{
		Accepted:  true,
		Outcome:   model.OutcomeForbidden,
		Message:   "payment is " + string(p.Status),
		PaymentID: p.ID,
		UserID:    p.UserID,
	}
}

func (u *settlementUC) authenticate(presented string) bool {
	if u.cfg.APIKey == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(u.cfg.APIKey)) == 1
}

// flag records a reconciliation item outside any settlement transaction.
func (u *settlementUC) flag(ctx context.Context, f *model.ReconciliationFlag) {
	if u.flags == nil {
		return
	}
	if err := u.flags.Save(ctx, repository.NoTX, f); err != nil {
		u.log.Error().Err(err).Str("reason", string(f.Reason)).Msg("failed to record reconciliation flag")
	}
}

func (u *settlementUC) invalidate(ctx context.Context, ev adapter.SettlementEvent) {
	invalidateUser(ctx, u.invalidator, u.log, ev)
}

// invalidateUser notifies read-path caches. It never fails the caller.
func invalidateUser(ctx context.Context, inv adapter.CacheInvalidator, log *zerolog.Logger, ev adapter.SettlementEvent) {
	if inv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := inv.InvalidateUser(ctx, ev); err != nil {
		log.Warn().Err(err).Str("user_id", ev.UserID).Msg("cache invalidation failed")
	}
}
