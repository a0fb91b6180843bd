package checkout

import (
	"time"

	"github.com/hireloop/tokenpay/internal/outcome"
)

// Phase is the orchestrator's lifecycle position.
type Phase string

const (
	// PhaseIdle is the state before Open.
	PhaseIdle Phase = "idle"
	// PhaseFetchingInitial covers the first authorization fetch after Open.
	PhaseFetchingInitial Phase = "fetching-initial"
	// PhaseReady means a usable authorization is held and Submit may run.
	PhaseReady Phase = "ready"
	// PhaseSubmitting covers a confirmation in flight.
	PhaseSubmitting Phase = "submitting"
	// PhaseRefreshingStale covers replacing a stale authorization.
	PhaseRefreshingStale Phase = "refreshing-stale"
	// PhaseRequiresAction means the processor demands a client-side challenge.
	PhaseRequiresAction Phase = "requires-action"
	// PhaseSucceeded is terminal success with the credit applied.
	PhaseSucceeded Phase = "succeeded"
	// PhaseFailed is terminal failure carrying a classification.
	PhaseFailed Phase = "failed"
)

// State is a snapshot of the orchestrator published to subscribers. Callers
// switch on Phase; Classification is set only when Phase is PhaseFailed.
type State struct {
	Phase          Phase
	Classification outcome.Classification
	Message        string
	// RetryAfter is set on rate-limited failures: how long fetches stay
	// suspended.
	RetryAfter time.Duration
	// ActionSecret is set on PhaseRequiresAction: the client secret for the
	// processor's step-up challenge.
	ActionSecret string
	// ReconciliationFault marks a success whose balance credit failed to
	// persist. The charge went through; the balance needs manual repair.
	ReconciliationFault bool
}

// Failed reports whether the state is a terminal failure.
func (s State) Failed() bool { return s.Phase == PhaseFailed }

// Terminal reports whether no further orchestrator activity will occur.
func (s State) Terminal() bool {
	return s.Phase == PhaseSucceeded || s.Phase == PhaseFailed
}
