// Package responders writes the wire response shapes shared by the
// tokenpay HTTP handlers: plain JSON payloads, intent error bodies, and
// rate-limit rejections with their backoff window.
package responders

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hireloop/tokenpay/internal/intent"
)

// JSON writes an application/json response with status code and payload.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

// Error writes an intent error body with the given status and message.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, intent.ErrorResponse{Error: msg})
}

// RateLimited writes a 429 carrying both a Retry-After header and the
// structured body the checkout client parses to suspend its fetches.
func RateLimited(w http.ResponseWriter, msg string, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	JSON(w, http.StatusTooManyRequests, intent.ErrorResponse{
		Error:       msg,
		RateLimited: true,
		RetryAfter:  retryAfterSeconds,
	})
}
