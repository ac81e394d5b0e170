//go:build !integration

package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"credit-settlement/internal/domain"
	"credit-settlement/internal/domain/model"
	"credit-settlement/internal/usecase"
)

const (
	testGatewayKey = "gateway-secret"
	testJWTSecret  = "test-service-jwt-secret-please-change"
	testWebhook    = "/hooks/bank"
	testUser       = "7d8f6b2a-9c1e-4f3a-8b5d-2e6c4a1f9d70"
)

type testEnv struct {
	settle  *mockSettlementUC
	pay     *mockPaymentUC
	subs    *mockSubscriptionUC
	wallets *mockWalletUC
	recon   *mockReconciliationUC
	limiter *mockLimiter
	auth    *AuthManager
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		settle:  &mockSettlementUC{Key: testGatewayKey, Result: &model.SettlementResult{Accepted: true, Outcome: model.OutcomeSettled, Message: "ok"}},
		pay:     &mockPaymentUC{payments: map[string]*model.Payment{}},
		subs:    &mockSubscriptionUC{},
		wallets: &mockWalletUC{balances: map[string]int64{}},
		recon:   &mockReconciliationUC{resolved: map[string]string{}},
		limiter: &mockLimiter{counts: map[string]int{}},
		auth:    NewAuthManager(testJWTSecret, time.Minute),
	}
	srv := NewServer(Deps{
		Settlement:     e.settle,
		Payments:       e.pay,
		Subscriptions:  e.subs,
		Wallets:        e.wallets,
		Reconciliation: e.recon,
		Auth:           e.auth,
		Limiter:        e.limiter,
	}, Options{
		WebhookPath:       testWebhook,
		AuthFailureLimit:  2,
		AuthFailureWindow: time.Minute,
	}, newTestLogger())
	e.handler = srv.Router()
	return e
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) authed(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	tok, err := e.auth.Mint("billing-service")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}

func webhookRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, testWebhook, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Apikey "+key)
	}
	return req
}

const inboundBody = `{"id":92704,"gateway":"Vietcombank","transactionDate":"2025-01-15 10:00:00",
"accountNumber":"0123499999","code":null,"content":"EDU0a1b2c3d4e5f60718293a4b5c6d7e8f9 chuyen tien",
"transferType":"in","transferAmount":50000,"accumulated":19077000,"subAccount":null,
"referenceCode":"MBVCB.3278907687","description":""}`

func decodeWebhook(t *testing.T, rr *httptest.ResponseRecorder) webhookResponse {
	t.Helper()
	var body webhookResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestWebhook(t *testing.T) {
	t.Run("should decode the notification and acknowledge a settlement", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(t)

		// --- Act ---
		rr := e.do(t, webhookRequest(testGatewayKey, inboundBody))

		// --- Assert ---
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if body := decodeWebhook(t, rr); !body.Success {
			t.Errorf("expected success=true, got %+v", body)
		}
		if len(e.settle.Seen) != 1 {
			t.Fatalf("expected one notification, got %d", len(e.settle.Seen))
		}
		n := e.settle.Seen[0]
		if n.TransferAmount != 50000 || n.ReferenceCode != "MBVCB.3278907687" || !n.IsInbound() {
			t.Errorf("unexpected decoded notification: %+v", n)
		}
		if rr.Header().Get("X-Request-Id") == "" {
			t.Error("expected a trace id header")
		}
	})

	t.Run("should map outcomes onto status codes", func(t *testing.T) {
		cases := []struct {
			name    string
			result  *model.SettlementResult
			err     error
			status  int
			success bool
		}{
			{"duplicate", &model.SettlementResult{Accepted: true, Outcome: model.OutcomeDuplicate}, nil, http.StatusOK, true},
			{"forbidden", &model.SettlementResult{Accepted: true, Outcome: model.OutcomeForbidden}, nil, http.StatusOK, true},
			{"outbound", &model.SettlementResult{Accepted: true, Outcome: model.OutcomeIgnored}, nil, http.StatusOK, true},
			{"unparsable", &model.SettlementResult{Outcome: model.OutcomeUnparsable}, nil, http.StatusOK, false},
			{"not found", &model.SettlementResult{Outcome: model.OutcomeNotFound, Message: "payment not found"}, domain.ErrPaymentNotFound, http.StatusNotFound, false},
			{"transient", &model.SettlementResult{Outcome: model.OutcomeFailed}, errors.New("connection reset"), http.StatusInternalServerError, false},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				// --- Arrange ---
				e := newTestEnv(t)
				e.settle.Result, e.settle.Err = tc.result, tc.err

				// --- Act ---
				rr := e.do(t, webhookRequest(testGatewayKey, inboundBody))

				// --- Assert ---
				if rr.Code != tc.status {
					t.Fatalf("expected %d, got %d", tc.status, rr.Code)
				}
				if body := decodeWebhook(t, rr); body.Success != tc.success {
					t.Errorf("expected success=%v, got %+v", tc.success, body)
				}
			})
		}
	})

	t.Run("should reject a wrong key with 401", func(t *testing.T) {
		e := newTestEnv(t)
		rr := e.do(t, webhookRequest("wrong", inboundBody))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
		if len(e.settle.Seen) != 0 {
			t.Error("expected no notification to pass authentication")
		}
	})

	t.Run("should reject a bearer token in place of the api key", func(t *testing.T) {
		e := newTestEnv(t)
		req := webhookRequest("", inboundBody)
		req.Header.Set("Authorization", "Bearer "+testGatewayKey)
		if rr := e.do(t, req); rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("should throttle repeated auth failures from one address", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(t)

		// --- Act ---
		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			codes = append(codes, e.do(t, webhookRequest("wrong", inboundBody)).Code)
		}

		// --- Assert ---
		if codes[0] != http.StatusUnauthorized || codes[1] != http.StatusUnauthorized {
			t.Fatalf("expected the first two failures to get 401, got %v", codes)
		}
		if codes[2] != http.StatusTooManyRequests {
			t.Fatalf("expected 429 once over the limit, got %d", codes[2])
		}
		if e.limiter.counts["rate_limit:webhook_auth:192.0.2.1"] != 3 {
			t.Errorf("expected failures counted per host, got %v", e.limiter.counts)
		}
	})

	t.Run("should fall back to 401 when the limiter is down", func(t *testing.T) {
		e := newTestEnv(t)
		e.limiter.err = errors.New("redis down")
		for i := 0; i < 3; i++ {
			if rr := e.do(t, webhookRequest("wrong", inboundBody)); rr.Code != http.StatusUnauthorized {
				t.Fatalf("attempt %d: expected 401, got %d", i, rr.Code)
			}
		}
	})

	t.Run("should answer 400 to a malformed body with a valid key", func(t *testing.T) {
		e := newTestEnv(t)
		if rr := e.do(t, webhookRequest(testGatewayKey, "{not json")); rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("should answer 401 to a malformed body with a bad key", func(t *testing.T) {
		e := newTestEnv(t)
		if rr := e.do(t, webhookRequest("wrong", "{not json")); rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("should only accept POST", func(t *testing.T) {
		e := newTestEnv(t)
		req := httptest.NewRequest(http.MethodGet, testWebhook, nil)
		if rr := e.do(t, req); rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rr.Code)
		}
	})
}

func TestServiceAuth(t *testing.T) {
	e := newTestEnv(t)
	path := "/api/v1/users/" + testUser + "/wallet"

	t.Run("no credentials -> 401", func(t *testing.T) {
		if rr := e.do(t, httptest.NewRequest(http.MethodGet, path, nil)); rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("wrong scheme -> 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Apikey "+testGatewayKey)
		if rr := e.do(t, req); rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("token signed with another secret -> 401", func(t *testing.T) {
		other := NewAuthManager("some-other-secret", time.Minute)
		tok, _ := other.Mint("billing-service")
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		if rr := e.do(t, req); rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("expired token -> 401", func(t *testing.T) {
		expired := NewAuthManager(testJWTSecret, time.Nanosecond)
		tok, _ := expired.Mint("billing-service")
		time.Sleep(5 * time.Millisecond)
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		if rr := e.do(t, req); rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("valid token -> 200", func(t *testing.T) {
		if rr := e.do(t, e.authed(t, http.MethodGet, path, "")); rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("health and metrics stay public", func(t *testing.T) {
		for _, p := range []string{"/health", "/metrics"} {
			if rr := e.do(t, httptest.NewRequest(http.MethodGet, p, nil)); rr.Code != http.StatusOK {
				t.Errorf("%s: expected 200, got %d", p, rr.Code)
			}
		}
	})
}

func TestServiceRoutesDisabledWithoutSecret(t *testing.T) {
	srv := NewServer(Deps{Settlement: &mockSettlementUC{}}, Options{WebhookPath: testWebhook}, newTestLogger())
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/abc", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPaymentRoutes(t *testing.T) {
	t.Run("should return a payment for a status poll", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(t)
		p, _, err := e.pay.Create(context.Background(), testUser, 50000, model.PaymentTypeCredits)
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		// --- Act ---
		rr := e.do(t, e.authed(t, http.MethodGet, "/api/v1/payments/"+p.ID, ""))

		// --- Assert ---
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var got paymentResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.ID != p.ID || got.Status != model.PaymentStatusUnpaid || got.Amount != 50000 {
			t.Errorf("unexpected payment: %+v", got)
		}
	})

	t.Run("should return 404 for an unknown payment", func(t *testing.T) {
		e := newTestEnv(t)
		if rr := e.do(t, e.authed(t, http.MethodGet, "/api/v1/payments/nope", "")); rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
	})
}

func TestSubscriptionRoutes(t *testing.T) {
	t.Run("should serve the benefits view", func(t *testing.T) {
		e := newTestEnv(t)
		e.subs.view = &usecase.SubscriptionView{UserID: testUser, Tier: model.TierVIP, IsActive: true}
		rr := e.do(t, e.authed(t, http.MethodGet, "/api/v1/users/"+testUser+"/subscription", ""))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var got usecase.SubscriptionView
		_ = json.Unmarshal(rr.Body.Bytes(), &got)
		if got.Tier != model.TierVIP || !got.IsActive {
			t.Errorf("unexpected view: %+v", got)
		}
	})

	t.Run("should serve the active flag", func(t *testing.T) {
		e := newTestEnv(t)
		e.subs.active = true
		rr := e.do(t, e.authed(t, http.MethodGet, "/api/v1/users/"+testUser+"/subscription/active", ""))
		if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"active":true`) {
			t.Fatalf("expected active=true, got %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("should surface storage errors as 500", func(t *testing.T) {
		e := newTestEnv(t)
		e.subs.err = domain.ErrOperationFailed
		rr := e.do(t, e.authed(t, http.MethodGet, "/api/v1/users/"+testUser+"/subscription", ""))
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rr.Code)
		}
	})
}

func TestWalletRoutes(t *testing.T) {
	base := "/api/v1/users/" + testUser + "/wallet"

	t.Run("should debit with the token subject as actor", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(t)
		e.wallets.balances[testUser] = 10

		// --- Act ---
		rr := e.do(t, e.authed(t, http.MethodPost, base+"/debit", `{"amount":4,"description":"chat"}`))

		// --- Assert ---
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
		var got transactionResponse
		_ = json.Unmarshal(rr.Body.Bytes(), &got)
		if got.BalanceAfter != 6 || got.Direction != model.DirectionSubtract || got.Type != model.TransactionTypeUseServices {
			t.Errorf("unexpected entry: %+v", got)
		}
		if len(e.wallets.actors) != 1 || e.wallets.actors[0] != "billing-service" {
			t.Errorf("expected actor billing-service, got %v", e.wallets.actors)
		}
	})

	t.Run("should refuse to overdraw", func(t *testing.T) {
		e := newTestEnv(t)
		e.wallets.balances[testUser] = 3
		rr := e.do(t, e.authed(t, http.MethodPost, base+"/debit", `{"amount":4}`))
		if rr.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rr.Code)
		}
		if e.wallets.balances[testUser] != 3 {
			t.Errorf("expected balance untouched, got %d", e.wallets.balances[testUser])
		}
	})

	t.Run("should reject a malformed body", func(t *testing.T) {
		e := newTestEnv(t)
		if rr := e.do(t, e.authed(t, http.MethodPost, base+"/debit", `nope`)); rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("should default adjustments to admin-adjustment", func(t *testing.T) {
		e := newTestEnv(t)
		rr := e.do(t, e.authed(t, http.MethodPost, base+"/adjust", `{"delta":7,"description":"goodwill"}`))
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
		var got transactionResponse
		_ = json.Unmarshal(rr.Body.Bytes(), &got)
		if got.Type != model.TransactionTypeAdminAdjustment || got.BalanceAfter != 7 {
			t.Errorf("unexpected entry: %+v", got)
		}
	})

	t.Run("should reject adjustments of other types", func(t *testing.T) {
		e := newTestEnv(t)
		rr := e.do(t, e.authed(t, http.MethodPost, base+"/adjust", `{"delta":7,"type":"buy-credits"}`))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("should pass the history limit through", func(t *testing.T) {
		e := newTestEnv(t)
		rr := e.do(t, e.authed(t, http.MethodGet, base+"/transactions?limit=5", ""))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if e.wallets.lastLimit != 5 {
			t.Errorf("expected limit 5, got %d", e.wallets.lastLimit)
		}
		if rr := e.do(t, e.authed(t, http.MethodGet, base+"/transactions?limit=-1", "")); rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for a negative limit, got %d", rr.Code)
		}
	})
}

func TestReconciliationRoutes(t *testing.T) {
	t.Run("should list open flags and resolve one", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(t)
		f := model.NewReconciliationFlag(model.ReasonUnparsableMemo, &model.TransferNotification{ID: 1, ReferenceCode: "REF1", TransferAmount: 1000}, "no id")
		e.recon.flags = []*model.ReconciliationFlag{f}

		// --- Act ---
		list := e.do(t, e.authed(t, http.MethodGet, "/api/v1/reconciliation", ""))
		resolve := e.do(t, e.authed(t, http.MethodPost, "/api/v1/reconciliation/"+f.ID+"/resolve", ""))
		again := e.do(t, e.authed(t, http.MethodPost, "/api/v1/reconciliation/"+f.ID+"/resolve", ""))

		// --- Assert ---
		var flags []flagResponse
		_ = json.Unmarshal(list.Body.Bytes(), &flags)
		if list.Code != http.StatusOK || len(flags) != 1 || flags[0].Reason != model.ReasonUnparsableMemo {
			t.Fatalf("unexpected list response %d: %s", list.Code, list.Body.String())
		}
		if resolve.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", resolve.Code)
		}
		if e.recon.resolved[f.ID] != "billing-service" {
			t.Errorf("expected resolver billing-service, got %q", e.recon.resolved[f.ID])
		}
		if again.Code != http.StatusNotFound {
			t.Errorf("expected 404 on second resolve, got %d", again.Code)
		}
	})
}

func TestPresentedAPIKey(t *testing.T) {
	cases := map[string]string{
		"Apikey abc":   "abc",
		"apikey  abc ": "abc",
		"APIKEY abc":   "abc",
		"Bearer abc":   "",
		"Apikey":       "",
		"":             "",
	}
	for hdr, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", hdr)
		if got := presentedAPIKey(req); got != want {
			t.Errorf("%q: expected %q, got %q", hdr, want, got)
		}
	}
}
