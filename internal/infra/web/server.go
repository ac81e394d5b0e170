package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"credit-settlement/internal/usecase"
)

// Limiter counts failed webhook authentications per remote address.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Deps struct {
	Settlement     usecase.SettlementUseCase
	Payments       usecase.PaymentUseCase
	Subscriptions  usecase.SubscriptionUseCase
	Wallets        usecase.WalletUseCase
	Reconciliation usecase.ReconciliationUseCase
	Auth           *AuthManager // nil leaves the /api/v1 service routes unmounted
	Limiter        Limiter      // nil disables auth failure limiting
}

type Options struct {
	WebhookPath       string
	RequestTimeout    time.Duration
	AuthFailureLimit  int
	AuthFailureWindow time.Duration
	Dev               bool
}

type Server struct {
	deps Deps
	opts Options
	log  *zerolog.Logger
}

func NewServer(deps Deps, opts Options, logger *zerolog.Logger) *Server {
	if opts.WebhookPath == "" {
		opts.WebhookPath = "/api/v1/webhooks/sepay"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	l := logger.With().Str("component", "http").Logger()
	return &Server{deps: deps, opts: opts, log: &l}
}

// Router builds the full HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		TraceID(),
		RequestLog(s.log),
		Recover(s.log),
		Timeout(s.opts.RequestTimeout),
	)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post(s.opts.WebhookPath, s.handleWebhook)

	if s.deps.Auth == nil {
		s.log.Warn().Msg("service jwt secret not configured, /api/v1 service routes disabled")
		return r
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireService(s.deps.Auth, s.log))

		r.Get("/payments/{id}", s.handleGetPayment)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/subscription", s.handleGetSubscription)
			r.Get("/subscription/active", s.handleHasActiveSubscription)
			r.Get("/wallet", s.handleGetBalance)
			r.Get("/wallet/transactions", s.handleListTransactions)
			r.Post("/wallet/debit", s.handleDebit)
			r.Post("/wallet/adjust", s.handleAdjust)
		})
		r.Get("/reconciliation", s.handleListFlags)
		r.Post("/reconciliation/{id}/resolve", s.handleResolveFlag)
	})
	return r
}

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Success: false, Message: msg})
}
