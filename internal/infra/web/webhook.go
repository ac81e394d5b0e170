package web

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"credit-settlement/internal/domain"
	"credit-settlement/internal/domain/model"
	"credit-settlement/internal/infra/logging"
	"credit-settlement/internal/infra/metrics"
	"credit-settlement/internal/infra/redis"
)

const maxWebhookBody = 64 << 10

type webhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// handleWebhook receives one transfer notification from the bank gateway.
// 2xx tells the gateway to stop retrying, 5xx asks it to retry.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	key := presentedAPIKey(r)

	var n *model.TransferNotification
	var decoded model.TransferNotification
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&decoded); err == nil {
		n = &decoded
	}

	res, err := s.deps.Settlement.HandleNotification(ctx, n, key)
	if res != nil {
		record(res, time.Since(start))
	}

	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		if s.authFailureLimited(r) {
			writeJSON(w, http.StatusTooManyRequests, webhookResponse{Message: "too many attempts"})
			return
		}
		writeJSON(w, http.StatusUnauthorized, webhookResponse{Message: "unauthorized"})
	case n == nil && errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, webhookResponse{Message: "invalid payload"})
	case errors.Is(err, domain.ErrPaymentNotFound):
		writeJSON(w, http.StatusNotFound, webhookResponse{Message: res.Message})
	case err != nil:
		l := logging.With(ctx, s.log)
		l.Error().Err(err).Msg("notification processing failed")
		writeJSON(w, http.StatusInternalServerError, webhookResponse{Message: "temporary failure"})
	default:
		writeJSON(w, http.StatusOK, webhookResponse{Success: res.Accepted, Message: res.Message})
	}
}

// authFailureLimited counts a failed authentication for the caller and reports
// whether it is over the configured budget. Limiter errors never block the caller.
func (s *Server) authFailureLimited(r *http.Request) bool {
	if s.deps.Limiter == nil || s.opts.AuthFailureLimit <= 0 {
		return false
	}
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	ok, err := s.deps.Limiter.Allow(r.Context(), redis.AuthFailureKey(remote), s.opts.AuthFailureLimit, s.opts.AuthFailureWindow)
	if err != nil {
		l := logging.With(r.Context(), s.log)
		l.Warn().Err(err).Msg("auth failure limiter unavailable")
		return false
	}
	return !ok
}

// record translates a settlement result into metrics.
func record(res *model.SettlementResult, d time.Duration) {
	metrics.ObserveSettlement(string(res.Outcome), d)

	if res.CreditsGranted > 0 {
		typ := model.TransactionTypeBuyCredits
		kind := "credits"
		switch {
		case res.Outcome == model.OutcomeFallback:
			typ, kind = model.TransactionTypeBuyCreditsFallback, "fallback"
		case res.Tier != "":
			typ, kind = model.TransactionTypeBuySubscription, "subscription"
		}
		metrics.AddCreditsGranted(kind, res.CreditsGranted)
		metrics.IncWalletEntry(string(typ), string(model.DirectionAdd))
	}

	switch res.Outcome {
	case model.OutcomeUnparsable:
		metrics.IncReconciliationFlag(string(model.ReasonUnparsableMemo))
	case model.OutcomeNotFound:
		metrics.IncReconciliationFlag(string(model.ReasonPaymentNotFound))
	case model.OutcomeForbidden:
		metrics.IncReconciliationFlag(string(model.ReasonNotPayable))
	}
	if res.FlaggedReview {
		metrics.IncReconciliationFlag(string(model.ReasonUnderpaid))
	}
}
