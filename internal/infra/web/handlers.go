package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"credit-settlement/internal/domain"
	"credit-settlement/internal/domain/model"
	"credit-settlement/internal/infra/logging"
	"credit-settlement/internal/infra/metrics"
)

const defaultListLimit = 50

type paymentResponse struct {
	ID          string              `json:"id"`
	UserID      string              `json:"user_id"`
	Amount      int64               `json:"amount"`
	PaidAmount  *int64              `json:"paid_amount,omitempty"`
	Type        model.PaymentType   `json:"type"`
	Status      model.PaymentStatus `json:"status"`
	ProviderRef *string             `json:"provider_ref,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	PaidAt      *time.Time          `json:"paid_at,omitempty"`
}

type transactionResponse struct {
	ID           string                     `json:"id"`
	Amount       int64                      `json:"amount"`
	Type         model.TransactionType      `json:"type"`
	Direction    model.TransactionDirection `json:"direction"`
	Description  string                     `json:"description"`
	CreatedBy    string                     `json:"created_by"`
	BalanceAfter int64                      `json:"balance_after"`
	CreatedAt    time.Time                  `json:"created_at"`
}

type flagResponse struct {
	ID             string                     `json:"id"`
	Reason         model.ReconciliationReason `json:"reason"`
	PaymentID      *string                    `json:"payment_id,omitempty"`
	ProviderRef    string                     `json:"provider_ref"`
	ProviderID     int64                      `json:"provider_id"`
	Amount         int64                      `json:"amount"`
	ExpectedAmount *int64                     `json:"expected_amount,omitempty"`
	Note           string                     `json:"note"`
	CreatedAt      time.Time                  `json:"created_at"`
}

func toTransaction(t *model.WalletTransaction) transactionResponse {
	return transactionResponse{
		ID:           t.ID,
		Amount:       t.Amount,
		Type:         t.Type,
		Direction:    t.Direction,
		Description:  t.Description,
		CreatedBy:    t.CreatedBy,
		BalanceAfter: t.BalanceAfter,
		CreatedAt:    t.CreatedAt,
	}
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Payments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResponse{
		ID:          p.ID,
		UserID:      p.UserID,
		Amount:      p.Amount,
		PaidAmount:  p.PaidAmount,
		Type:        p.Type,
		Status:      p.Status,
		ProviderRef: p.ProviderRef,
		CreatedAt:   p.CreatedAt,
		PaidAt:      p.PaidAt,
	})
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Subscriptions.GetSubscriptionBenefits(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHasActiveSubscription(w http.ResponseWriter, r *http.Request) {
	active, err := s.deps.Subscriptions.HasActiveSubscription(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	balance, err := s.deps.Wallets.Balance(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": balance})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	txs, err := s.deps.Wallets.History(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransaction(t))
	}
	writeJSON(w, http.StatusOK, out)
}

type debitRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

func (s *Server) handleDebit(w http.ResponseWriter, r *http.Request) {
	var req debitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tx, err := s.deps.Wallets.Debit(r.Context(), chi.URLParam(r, "userID"), req.Amount, req.Description, actorFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	metrics.IncWalletEntry(string(tx.Type), string(tx.Direction))
	writeJSON(w, http.StatusCreated, toTransaction(tx))
}

type adjustRequest struct {
	Delta       int64                 `json:"delta"`
	Type        model.TransactionType `json:"type"`
	Description string                `json:"description"`
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		req.Type = model.TransactionTypeAdminAdjustment
	}
	tx, err := s.deps.Wallets.Adjust(r.Context(), chi.URLParam(r, "userID"), req.Delta, req.Type, req.Description, actorFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	metrics.IncWalletEntry(string(tx.Type), string(tx.Direction))
	writeJSON(w, http.StatusCreated, toTransaction(tx))
}

func (s *Server) handleListFlags(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	flags, err := s.deps.Reconciliation.ListOpen(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]flagResponse, 0, len(flags))
	for _, f := range flags {
		out = append(out, flagResponse{
			ID:             f.ID,
			Reason:         f.Reason,
			PaymentID:      f.PaymentID,
			ProviderRef:    f.ProviderRef,
			ProviderID:     f.ProviderID,
			Amount:         f.Amount,
			ExpectedAmount: f.ExpectedAmount,
			Note:           f.Note,
			CreatedAt:      f.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResolveFlag(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Reconciliation.Resolve(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context())); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps domain errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPaymentNotFound), errors.Is(err, domain.ErrWalletNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientCredits):
		writeError(w, http.StatusConflict, "insufficient credits")
	default:
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
