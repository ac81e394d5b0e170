//go:build !integration

package web

import (
	"context"
	"sync"
	"time"

	"credit-settlement/internal/domain"
	"credit-settlement/internal/domain/model"
	"credit-settlement/internal/usecase"

	"github.com/rs/zerolog"
)

// newTestLogger creates a silent logger for tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// --- Mock Use Cases ---

type mockSettlementUC struct {
	mu     sync.Mutex
	Result *model.SettlementResult
	Err    error
	Key    string // accepted shared secret; empty accepts anything
	Seen   []*model.TransferNotification
	Calls  int
}

func (m *mockSettlementUC) HandleNotification(ctx context.Context, n *model.TransferNotification, key string) (*model.SettlementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Key != "" && key != m.Key {
		return &model.SettlementResult{Outcome: model.OutcomeUnauthorized}, domain.ErrUnauthorized
	}
	if n == nil {
		return &model.SettlementResult{Outcome: model.OutcomeFailed}, domain.ErrInvalidArgument
	}
	m.Seen = append(m.Seen, n)
	return m.Result, m.Err
}

type mockPaymentUC struct {
	payments map[string]*model.Payment
}

func (m *mockPaymentUC) Create(ctx context.Context, userID string, amount int64, typ model.PaymentType) (*model.Payment, string, error) {
	p, err := model.NewPayment(userID, amount, typ)
	if err != nil {
		return nil, "", err
	}
	m.payments[p.ID] = p
	return p, "EDU" + p.ID, nil
}

func (m *mockPaymentUC) Get(ctx context.Context, id string) (*model.Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

type mockSubscriptionUC struct {
	view   *usecase.SubscriptionView
	active bool
	err    error
}

func (m *mockSubscriptionUC) GetSubscriptionBenefits(ctx context.Context, userID string) (*usecase.SubscriptionView, error) {
	return m.view, m.err
}

func (m *mockSubscriptionUC) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	return m.active, m.err
}

type mockWalletUC struct {
	mu        sync.Mutex
	balances  map[string]int64
	history   []*model.WalletTransaction
	actors    []string
	lastLimit int
}

func (m *mockWalletUC) Balance(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

func (m *mockWalletUC) History(ctx context.Context, userID string, limit int) ([]*model.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	return m.history, nil
}

func (m *mockWalletUC) Debit(ctx context.Context, userID string, amount int64, description, actor string) (*model.WalletTransaction, error) {
	return m.apply(userID, model.LedgerEntry{Amount: amount, Direction: model.DirectionSubtract, Type: model.TransactionTypeUseServices, Description: description, CreatedBy: actor})
}

func (m *mockWalletUC) Adjust(ctx context.Context, userID string, delta int64, typ model.TransactionType, description, actor string) (*model.WalletTransaction, error) {
	if delta == 0 || (typ != model.TransactionTypeRefund && typ != model.TransactionTypeAdminAdjustment) {
		return nil, domain.ErrInvalidArgument
	}
	e := model.LedgerEntry{Amount: delta, Direction: model.DirectionAdd, Type: typ, Description: description, CreatedBy: actor}
	if delta < 0 {
		e.Amount, e.Direction = -delta, model.DirectionSubtract
	}
	return m.apply(userID, e)
}

func (m *mockWalletUC) apply(userID string, e model.LedgerEntry) (*model.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	next := m.balances[userID] + e.Delta()
	if next < 0 {
		return nil, domain.ErrInsufficientCredits
	}
	m.balances[userID] = next
	m.actors = append(m.actors, e.CreatedBy)
	tx := e.NewTransaction("w-"+userID, time.Now())
	tx.BalanceAfter = next
	return tx, nil
}

type mockReconciliationUC struct {
	flags    []*model.ReconciliationFlag
	resolved map[string]string
}

func (m *mockReconciliationUC) ListOpen(ctx context.Context, limit int) ([]*model.ReconciliationFlag, error) {
	return m.flags, nil
}

func (m *mockReconciliationUC) Resolve(ctx context.Context, id, by string) error {
	for _, f := range m.flags {
		if f.ID == id {
			if _, done := m.resolved[id]; done {
				return domain.ErrNotFound
			}
			m.resolved[id] = by
			return nil
		}
	}
	return domain.ErrNotFound
}

type mockLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key] <= limit, nil
}
