// Package balance tracks workspace token balances and applies purchase
// credits exactly once per confirmed authorization.
package balance

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a workspace has no balance record yet.
var ErrNotFound = errors.New("balance: workspace not found")

// Credit is one confirmed purchase to apply to a workspace balance.
// AuthorizationID is the idempotency key: a credit with an already-seen
// authorization ID is silently skipped.
type Credit struct {
	CustomerID      string
	AuthorizationID string
	Tokens          int64
	Mode            string
	AppliedAt       time.Time
}

// Snapshot is the current balance state of a workspace.
type Snapshot struct {
	CustomerID string
	Tokens     int64
	AutoTopUp  bool
	UpdatedAt  time.Time
}

// Store persists workspace balances and the credit ledger.
type Store interface {
	// ApplyCredit records the credit and increments the balance atomically.
	// Returns false without error when the authorization ID was already
	// credited.
	ApplyCredit(ctx context.Context, credit Credit) (bool, error)

	// Balance returns the workspace snapshot, or ErrNotFound.
	Balance(ctx context.Context, customerID string) (Snapshot, error)

	// SetAutoTopUp flags the workspace for automatic recharge.
	SetAutoTopUp(ctx context.Context, customerID string, enabled bool) error

	Close() error
}
