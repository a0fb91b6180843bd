// Package session holds per-checkout state: the session context created when
// the checkout dialog opens and the staleness clock for the live authorization.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Mode selects how the purchased tokens are paid for.
type Mode string

const (
	// ModeOneTime charges the card immediately.
	ModeOneTime Mode = "one-time"
	// ModeAutoRecharge stores the card and enables future off-session top-ups.
	ModeAutoRecharge Mode = "auto-recharge"
)

// Valid reports whether the mode is one of the supported payment modes.
func (m Mode) Valid() bool {
	return m == ModeOneTime || m == ModeAutoRecharge
}

// DefaultStaleTTL is how long a fetched authorization is trusted client-side.
// Deliberately shorter than typical processor-side expiry so refresh happens
// before the processor rejects the authorization.
const DefaultStaleTTL = 20 * time.Second

// Context correlates all gateway calls and logs for one checkout dialog.
// A new Context is created every time the dialog opens; authorizations are
// never reused across contexts.
type Context struct {
	ID            string
	TokenQuantity int64
	PaymentMode   Mode
	CustomerID    string // discovered lazily from the first gateway response
	OpenedAt      time.Time
}

// NewContext creates a fresh session context with a unique id.
func NewContext(quantity int64, mode Mode, now time.Time) *Context {
	return &Context{
		ID:            uuid.NewString(),
		TokenQuantity: quantity,
		PaymentMode:   mode,
		OpenedAt:      now,
	}
}

// Clock tracks when the current authorization was fetched and decides
// staleness against a fixed TTL.
type Clock struct {
	fetchedAt time.Time
}

// RecordFetch stores the instant an authorization was obtained.
func (c *Clock) RecordFetch(t time.Time) {
	c.fetchedAt = t
}

// Reset forgets the recorded fetch time, making the clock stale again.
func (c *Clock) Reset() {
	c.fetchedAt = time.Time{}
}

// IsStale reports whether the authorization should be refreshed before use.
// An authorization with no recorded fetch time is always stale.
func (c *Clock) IsStale(now time.Time, ttl time.Duration) bool {
	if c.fetchedAt.IsZero() {
		return true
	}
	return now.Sub(c.fetchedAt) > ttl
}
