// Package outcome classifies checkout failures so callers switch on one
// value instead of combining many booleans.
package outcome

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	stripeapi "github.com/stripe/stripe-go/v72"
)

// Classification identifies the failure mode of a checkout operation.
type Classification string

const (
	// ClassValidation marks invalid input rejected before any network call.
	ClassValidation Classification = "validation"

	// ClassStaleAuthorization marks an authorization the processor no longer
	// recognizes. Safe to retry after discarding and refetching.
	ClassStaleAuthorization Classification = "retryable-stale-authorization"

	// ClassRequiresAction marks a processor demand for additional
	// authentication. Not an error; a distinct flow branch.
	ClassRequiresAction Classification = "requires-user-action"

	// ClassRateLimited marks a server-imposed backoff window.
	ClassRateLimited Classification = "rate-limited"

	// ClassNetworkBlocked marks obstructed connectivity to the processor
	// (ad blocker, firewall). Never retried automatically.
	ClassNetworkBlocked Classification = "network-blocked"

	// ClassReconciliationFault marks a successful charge whose balance
	// update failed to persist. Requires manual reconciliation, not a retry.
	ClassReconciliationFault Classification = "reconciliation-fault"

	// ClassFatal covers everything else: declined cards, malformed
	// responses, exhausted retry budgets.
	ClassFatal Classification = "fatal"
)

// AutoRetryable reports whether the orchestrator may retry this failure
// without user involvement.
func (c Classification) AutoRetryable() bool {
	return c == ClassStaleAuthorization
}

// Terminal reports whether the failure ends the submission flow for good.
func (c Classification) Terminal() bool {
	switch c {
	case ClassStaleAuthorization, ClassRequiresAction:
		return false
	default:
		return true
	}
}

// RateLimitedError is returned when the gateway imposes a backoff window.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

// Classify maps an error from a gateway or processor call to its failure
// classification. processorReachable is the last connectivity probe result;
// when false, ambiguous transport errors are attributed to blocking.
func Classify(err error, processorReachable bool) Classification {
	if err == nil {
		return ""
	}

	var rateLimited *RateLimitedError
	if errors.As(err, &rateLimited) {
		return ClassRateLimited
	}

	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Code == stripeapi.ErrorCodeResourceMissing:
			return ClassStaleAuthorization
		case stripeErr.Code == stripeapi.ErrorCodeRateLimit, stripeErr.HTTPStatusCode == 429:
			return ClassRateLimited
		default:
			// Only explicit resource-missing signals are retryable-stale;
			// declines, expired cards, and processor 5xx all surface as-is.
			return ClassFatal
		}
	}

	if isNetworkError(err) {
		return ClassNetworkBlocked
	}

	if mentionsMissingIntent(err) {
		return ClassStaleAuthorization
	}

	if !processorReachable {
		return ClassNetworkBlocked
	}
	return ClassFatal
}

// isNetworkError detects transport-level failures: timeouts, refused or
// reset connections, DNS problems.
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network is unreachable")
}

// mentionsMissingIntent catches processors that report a garbage-collected
// authorization through the error message rather than a typed code.
func mentionsMissingIntent(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "resource_missing") ||
		strings.Contains(msg, "no such payment_intent") ||
		strings.Contains(msg, "no such setup_intent") ||
		strings.Contains(msg, "no such intent")
}
