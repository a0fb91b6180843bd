package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hireloop/tokenpay/internal/intent"
	"github.com/hireloop/tokenpay/internal/outcome"
	"github.com/hireloop/tokenpay/internal/session"
)

func TestRequestAuthorizationSuccess(t *testing.T) {
	var received intent.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(intent.Response{
			ID:           "pi_123",
			ClientSecret: "pi_123_secret",
			CustomerID:   "cus_42",
			Amount:       72000,
			Timestamp:    time.Now().UnixMilli(),
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	auth, err := client.RequestAuthorization(context.Background(), session.ModeOneTime, 120, "", true, "sess-1")
	if err != nil {
		t.Fatalf("RequestAuthorization error: %v", err)
	}
	if auth.ID != "pi_123" || auth.Secret != "pi_123_secret" {
		t.Fatalf("unexpected authorization: %+v", auth)
	}
	if auth.Kind != intent.KindCharge {
		t.Fatalf("one-time mode must yield a charge authorization, got %s", auth.Kind)
	}
	if auth.OwnerCustomerID != "cus_42" {
		t.Fatalf("customer id not propagated: %+v", auth)
	}
	if !received.ForceNewIntent {
		t.Fatal("forceNewIntent not forwarded")
	}
	if received.SessionID != "sess-1" {
		t.Fatalf("session id not forwarded: %s", received.SessionID)
	}
}

func TestRequestAuthorizationSetupKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(intent.Response{ID: "seti_9", ClientSecret: "seti_9_secret"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	auth, err := client.RequestAuthorization(context.Background(), session.ModeAutoRecharge, 60, "", true, "sess-2")
	if err != nil {
		t.Fatalf("RequestAuthorization error: %v", err)
	}
	if auth.Kind != intent.KindSetup {
		t.Fatalf("auto-recharge mode must yield a setup authorization, got %s", auth.Kind)
	}
}

func TestRequestAuthorizationValidation(t *testing.T) {
	client := NewClient("http://unused.invalid", time.Second)

	if _, err := client.RequestAuthorization(context.Background(), session.Mode("weekly"), 10, "", false, "s"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if _, err := client.RequestAuthorization(context.Background(), session.ModeOneTime, 0, "", false, "s"); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestRequestAuthorizationRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "10")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(intent.ErrorResponse{Error: "rate_limit_exceeded", RateLimited: true, RetryAfter: 10})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	_, err := client.RequestAuthorization(context.Background(), session.ModeOneTime, 10, "", false, "s")

	var rateLimited *outcome.RateLimitedError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rateLimited.RetryAfter != 10*time.Second {
		t.Fatalf("unexpected retry-after: %s", rateLimited.RetryAfter)
	}
}

func TestRequestAuthorizationRateLimitedBodyFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(intent.ErrorResponse{Error: "rate_limit_exceeded", RateLimited: true, RetryAfter: 7})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	_, err := client.RequestAuthorization(context.Background(), session.ModeOneTime, 10, "", false, "s")

	var rateLimited *outcome.RateLimitedError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rateLimited.RetryAfter != 7*time.Second {
		t.Fatalf("unexpected retry-after: %s", rateLimited.RetryAfter)
	}
}

func TestRequestAuthorizationNoSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(intent.Response{ID: "pi_123"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	if _, err := client.RequestAuthorization(context.Background(), session.ModeOneTime, 10, "", false, "s"); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}

func TestRequestAuthorizationServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(intent.ErrorResponse{Error: "processor unavailable"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	_, err := client.RequestAuthorization(context.Background(), session.ModeOneTime, 10, "", false, "s")

	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if serverErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", serverErr.StatusCode)
	}
}

func TestCreateInitialCharge(t *testing.T) {
	var received intent.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(intent.Response{ID: "pi_charge", ClientSecret: "unused", Amount: 42000})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	if err := client.CreateInitialCharge(context.Background(), 60, "cus_42", "pm_7", "sess-3"); err != nil {
		t.Fatalf("CreateInitialCharge error: %v", err)
	}
	if !received.CreateCharge {
		t.Fatal("createCharge flag not set")
	}
	if received.PaymentMethodID != "pm_7" || received.CustomerID != "cus_42" {
		t.Fatalf("charge request missing identifiers: %+v", received)
	}
}
