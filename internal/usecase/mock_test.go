//go:build !integration

package usecase_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"credit-settlement/internal/domain"
	"credit-settlement/internal/domain/model"
	"credit-settlement/internal/domain/ports/adapter"
	"credit-settlement/internal/domain/ports/repository"
)

// -----------------------------
// In-memory store shared by the repository mocks
// -----------------------------

// memStore keeps every table behind one mutex. Each write made through a *memTx
// registers an undo step so MockTxManager can roll the whole unit back.
type memStore struct {
	mu           sync.Mutex
	payments     map[string]*model.Payment
	wallets      map[string]*model.Wallet // by wallet id
	walletByUser map[string]string
	ledger       []*model.WalletTransaction
	subs         map[string]*model.UserSubscription // by user id
	flags        []*model.ReconciliationFlag
}

func newMemStore() *memStore {
	return &memStore{
		payments:     map[string]*model.Payment{},
		wallets:      map[string]*model.Wallet{},
		walletByUser: map[string]string{},
		subs:         map[string]*model.UserSubscription{},
	}
}

type memTx struct {
	undo []func()
}

// record must be called with s.mu held.
func (s *memStore) record(tx repository.Tx, f func()) {
	if t, ok := tx.(*memTx); ok && t != nil {
		t.undo = append(t.undo, f)
	}
}

func (s *memStore) balance(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.walletByUser[userID]
	if !ok {
		return 0
	}
	return s.wallets[id].Balance
}

// ledgerFor returns the user's ledger rows, oldest first.
func (s *memStore) ledgerFor(userID string) []model.WalletTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.walletByUser[userID]
	var out []model.WalletTransaction
	for _, t := range s.ledger {
		if t.WalletID == id {
			out = append(out, *t)
		}
	}
	return out
}

func (s *memStore) payment(id string) model.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.payments[id]
}

func (s *memStore) flagCount(reason model.ReconciliationReason) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.flags {
		if f.Reason == reason {
			n++
		}
	}
	return n
}

func (s *memStore) putPayment(p *model.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.payments[p.ID] = &cp
}

// -----------------------------
// Transactions
// -----------------------------

type MockTxManager struct {
	store      *memStore
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error

	Commits   int
	Rollbacks int
}

func NewMockTxManager(store *memStore) *MockTxManager {
	return &MockTxManager{store: store}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn with a fresh undo log. Transactions are not serialized against each
// other; only the individual repository calls are atomic, as with row-level locking.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	tx := &memTx{}
	if err := fn(ctx, tx); err != nil {
		m.store.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		m.Rollbacks++
		m.store.mu.Unlock()
		return err
	}
	m.store.mu.Lock()
	m.Commits++
	m.store.mu.Unlock()
	return nil
}

// -----------------------------
// Repositories
// -----------------------------

type MockPaymentRepo struct {
	store *memStore

	FindErr     error
	MarkPaidErr error
}

func NewMockPaymentRepo(store *memStore) *MockPaymentRepo {
	return &MockPaymentRepo{store: store}
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func (m *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if _, ok := m.store.payments[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *p
	m.store.payments[p.ID] = &cp
	m.store.record(tx, func() { delete(m.store.payments, p.ID) })
	return nil
}

func (m *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	p, ok := m.store.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) MarkPaidIfUnpaid(ctx context.Context, tx repository.Tx, mp model.MarkPaid) (bool, error) {
	if m.MarkPaidErr != nil {
		return false, m.MarkPaidErr
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	p, ok := m.store.payments[mp.PaymentID]
	if !ok || p.Status != model.PaymentStatusUnpaid {
		return false, nil
	}
	prev := *p
	paid := mp.PaidAmount
	ref := mp.ProviderRef
	at := mp.PaidAt
	p.Status = model.PaymentStatusPaid
	p.PaidAmount = &paid
	p.ProviderRef = &ref
	p.PaidAt = &at
	p.UpdatedBy = mp.Actor
	p.UpdatedAt = mp.PaidAt
	m.store.record(tx, func() { *p = prev })
	return true, nil
}

type MockWalletRepo struct {
	store *memStore

	ApplyEntryErr error
}

func NewMockWalletRepo(store *memStore) *MockWalletRepo {
	return &MockWalletRepo{store: store}
}

var _ repository.WalletRepository = (*MockWalletRepo)(nil)

func (m *MockWalletRepo) FindOrCreate(ctx context.Context, tx repository.Tx, userID string) (*model.Wallet, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if id, ok := m.store.walletByUser[userID]; ok {
		cp := *m.store.wallets[id]
		return &cp, nil
	}
	now := time.Now()
	w := &model.Wallet{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	m.store.wallets[w.ID] = w
	m.store.walletByUser[userID] = w.ID
	m.store.record(tx, func() {
		delete(m.store.wallets, w.ID)
		delete(m.store.walletByUser, userID)
	})
	cp := *w
	return &cp, nil
}

func (m *MockWalletRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Wallet, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	id, ok := m.store.walletByUser[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m.store.wallets[id]
	return &cp, nil
}

func (m *MockWalletRepo) ApplyEntry(ctx context.Context, tx repository.Tx, walletID string, entry model.LedgerEntry) (*model.WalletTransaction, error) {
	if m.ApplyEntryErr != nil {
		return nil, m.ApplyEntryErr
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	w, ok := m.store.wallets[walletID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	delta := entry.Delta()
	if w.Balance+delta < 0 {
		return nil, domain.ErrInsufficientCredits
	}
	w.Balance += delta
	wt := entry.NewTransaction(walletID, time.Now())
	wt.BalanceAfter = w.Balance
	m.store.ledger = append(m.store.ledger, wt)
	m.store.record(tx, func() {
		w.Balance -= delta
		for i, t := range m.store.ledger {
			if t.ID == wt.ID {
				m.store.ledger = append(m.store.ledger[:i], m.store.ledger[i+1:]...)
				break
			}
		}
	})
	cp := *wt
	return &cp, nil
}

func (m *MockWalletRepo) ListTransactions(ctx context.Context, tx repository.Tx, walletID string, limit int) ([]*model.WalletTransaction, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []*model.WalletTransaction
	for i := len(m.store.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if t := m.store.ledger[i]; t.WalletID == walletID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

type MockSubscriptionRepo struct {
	store *memStore

	UpsertErr error
}

func NewMockSubscriptionRepo(store *memStore) *MockSubscriptionRepo {
	return &MockSubscriptionRepo{store: store}
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func (m *MockSubscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.UserSubscription, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	s, ok := m.store.subs[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, a model.Activation) (*model.UserSubscription, error) {
	if m.UpsertErr != nil {
		return nil, m.UpsertErr
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	s, existed := m.store.subs[a.UserID]
	var prev model.UserSubscription
	if existed {
		prev = *s
	} else {
		s = model.NewUserSubscription(a.UserID)
		m.store.subs[a.UserID] = s
	}
	last, next := a.LastPaymentDate, a.NextPaymentDate
	s.Tier = a.Tier
	s.BillingCycle = a.BillingCycle
	s.IsActive = true
	s.LastPaymentDate = &last
	s.NextPaymentDate = &next
	s.UpdatedAt = a.LastPaymentDate
	m.store.record(tx, func() {
		if existed {
			*s = prev
		} else {
			delete(m.store.subs, a.UserID)
		}
	})
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepo) DeactivateIfDue(ctx context.Context, tx repository.Tx, userID string, now time.Time) (bool, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	s, ok := m.store.subs[userID]
	if !ok || !s.IsDue(now) {
		return false, nil
	}
	s.IsActive = false
	s.UpdatedAt = now
	m.store.record(tx, func() { s.IsActive = true })
	return true, nil
}

// putSubscription seeds a subscription row directly.
func (m *MockSubscriptionRepo) putSubscription(s *model.UserSubscription) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	cp := *s
	m.store.subs[s.UserID] = &cp
}

type MockReconciliationRepo struct {
	store *memStore

	SaveErr error
}

func NewMockReconciliationRepo(store *memStore) *MockReconciliationRepo {
	return &MockReconciliationRepo{store: store}
}

var _ repository.ReconciliationRepository = (*MockReconciliationRepo)(nil)

func (m *MockReconciliationRepo) Save(ctx context.Context, tx repository.Tx, f *model.ReconciliationFlag) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	cp := *f
	m.store.flags = append(m.store.flags, &cp)
	m.store.record(tx, func() {
		for i, x := range m.store.flags {
			if x.ID == f.ID {
				m.store.flags = append(m.store.flags[:i], m.store.flags[i+1:]...)
				break
			}
		}
	})
	return nil
}

func (m *MockReconciliationRepo) ListOpen(ctx context.Context, tx repository.Tx, limit int) ([]*model.ReconciliationFlag, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []*model.ReconciliationFlag
	for _, f := range m.store.flags {
		if f.ResolvedAt == nil {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockReconciliationRepo) Resolve(ctx context.Context, tx repository.Tx, id, by string, at time.Time) (bool, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, f := range m.store.flags {
		if f.ID == id && f.ResolvedAt == nil {
			f.ResolvedAt = &at
			f.ResolvedBy = &by
			return true, nil
		}
	}
	return false, nil
}

// -----------------------------
// Adapters
// -----------------------------

type MockInvalidator struct {
	mu     sync.Mutex
	Events []adapter.SettlementEvent
	Err    error
}

var _ adapter.CacheInvalidator = (*MockInvalidator)(nil)

func (m *MockInvalidator) InvalidateUser(ctx context.Context, ev adapter.SettlementEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
	return m.Err
}

func (m *MockInvalidator) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Events)
}

type MockBalanceCache struct {
	mu       sync.Mutex
	balances map[string]int64
	GetErr   error
	Gets     int
	Sets     int
}

func NewMockBalanceCache() *MockBalanceCache {
	return &MockBalanceCache{balances: map[string]int64{}}
}

var _ adapter.BalanceCache = (*MockBalanceCache)(nil)

func (m *MockBalanceCache) GetBalance(ctx context.Context, userID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.GetErr != nil {
		return 0, false, m.GetErr
	}
	b, ok := m.balances[userID]
	return b, ok, nil
}

func (m *MockBalanceCache) SetBalance(ctx context.Context, userID string, balance int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sets++
	m.balances[userID] = balance
	return nil
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
