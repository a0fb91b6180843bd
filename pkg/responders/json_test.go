package responders

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hireloop/tokenpay/internal/intent"
)

func TestErrorWritesIntentErrorBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusBadRequest, "quantity must be a positive integer")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	var body intent.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "quantity must be a positive integer" || body.RateLimited {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestRateLimitedCarriesHeaderAndWindow(t *testing.T) {
	rec := httptest.NewRecorder()
	RateLimited(rec, "too many intent requests, please wait before retrying", 30)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("Retry-After = %q, want 30", got)
	}
	var body intent.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.RateLimited || body.RetryAfter != 30 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestJSONNilPayloadWritesNoBody(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusNoContent, nil)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
}
