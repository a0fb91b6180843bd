package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hireloop/tokenpay/internal/balance"
	"github.com/hireloop/tokenpay/internal/config"
	"github.com/hireloop/tokenpay/internal/intent"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, balance.Store) {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Address: ":0"},
		RateLimit: config.RateLimitConfig{
			Enabled: false,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	store := balance.NewMemoryStore()
	srv := New(cfg, nil, store, nil, nil, zerolog.Nop())
	return srv, store
}

func do(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestPricingQuote(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(srv, http.MethodGet, "/checkout/pricing?quantity=120", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp pricingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.UnitPrice != 6 {
		t.Fatalf("expected unit price 6, got %d", resp.UnitPrice)
	}
	if resp.TotalPrice != 720 {
		t.Fatalf("expected total price 720, got %d", resp.TotalPrice)
	}
	if resp.DiscountPercent != 25 {
		t.Fatalf("expected 25%% discount, got %d", resp.DiscountPercent)
	}
}

func TestPricingQuoteRejectsBadQuantity(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, q := range []string{"", "0", "-5", "abc"} {
		rec := do(srv, http.MethodGet, "/checkout/pricing?quantity="+q, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("quantity %q: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestGetBalance(t *testing.T) {
	srv, store := newTestServer(t, nil)

	if _, err := store.ApplyCredit(context.Background(), balance.Credit{
		CustomerID:      "cus_1",
		AuthorizationID: "pi_1",
		Tokens:          150,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := do(srv, http.MethodGet, "/checkout/balance/cus_1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp balanceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Tokens != 150 {
		t.Fatalf("expected 150 tokens, got %d", resp.Tokens)
	}
}

func TestGetBalanceUnknownCustomerIsZero(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(srv, http.MethodGet, "/checkout/balance/cus_missing", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp balanceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Tokens != 0 || resp.AutoTopUp {
		t.Fatalf("expected empty balance, got %+v", resp)
	}
}

func TestCreateIntentRejectsInvalidBody(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(srv, http.MethodPost, "/checkout/intents", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health body: %s", rec.Body.String())
	}
}

func TestRateLimitedIntentCarriesRetryAfter(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{
			Enabled: true,
			Limit:   1,
			Window:  config.Duration{Duration: time.Minute},
		}
	})

	first := do(srv, http.MethodPost, "/checkout/intents", "{not json")
	if first.Code != http.StatusBadRequest {
		t.Fatalf("first request: expected 400, got %d", first.Code)
	}

	second := do(srv, http.MethodPost, "/checkout/intents", "{not json")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", second.Header().Get("Retry-After"))
	}

	var resp intent.ErrorResponse
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.RateLimited || resp.RetryAfter != 60 {
		t.Fatalf("expected structured rate-limit body, got %+v", resp)
	}
}

func TestRoutePrefixApplied(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.RoutePrefix = "/api"
	})

	if rec := do(srv, http.MethodGet, "/api/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on prefixed route, got %d", rec.Code)
	}
	if rec := do(srv, http.MethodGet, "/health", ""); rec.Code == http.StatusOK {
		t.Fatal("unprefixed route must not resolve when a prefix is set")
	}
}
