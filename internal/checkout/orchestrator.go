// Package checkout owns the payment session lifecycle: fetching and
// refreshing time-limited payment authorizations, submitting card
// confirmations, classifying failures, and crediting the token balance
// exactly once per successful purchase.
package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hireloop/tokenpay/internal/intent"
	"github.com/hireloop/tokenpay/internal/metrics"
	"github.com/hireloop/tokenpay/internal/outcome"
	"github.com/hireloop/tokenpay/internal/processor"
	"github.com/hireloop/tokenpay/internal/session"
)

var (
	// ErrNotReady is returned by Submit outside the ready phase.
	ErrNotReady = errors.New("checkout: session not ready for submission")
	// ErrBusy is returned when a fetch or submission is already in flight.
	ErrBusy = errors.New("checkout: operation already in flight")
	// ErrClosed is returned when the session has been closed.
	ErrClosed = errors.New("checkout: session closed")
	// ErrInvalidQuantity rejects non-positive token quantities before any
	// network call.
	ErrInvalidQuantity = errors.New("checkout: token quantity must be a positive integer")
	// ErrInvalidMode rejects unknown payment modes before any network call.
	ErrInvalidMode = errors.New("checkout: invalid payment mode")
)

// Gateway issues and refreshes payment authorizations.
type Gateway interface {
	RequestAuthorization(ctx context.Context, mode session.Mode, quantity int64, customerID string, forceNew bool, sessionID string) (*intent.PaymentAuthorization, error)
	CreateInitialCharge(ctx context.Context, quantity int64, customerID, paymentMethodID, sessionID string) error
}

// CreditApplier applies the token credit for a confirmed purchase.
type CreditApplier interface {
	Reconcile(ctx context.Context, sess session.Context, authorizationID string) (bool, error)
}

// ReachabilityChecker reports the cached processor reachability.
type ReachabilityChecker interface {
	Reachable() bool
}

const (
	// DefaultMaxStaleRetries bounds automatic refetches per Submit call.
	DefaultMaxStaleRetries = 3
	// DefaultRefreshInterval is the background staleness check period.
	DefaultRefreshInterval = 2 * time.Second
)

// Orchestrator drives one checkout session at a time through the
// idle / fetching / ready / submitting / succeeded lifecycle. All operations
// on one Orchestrator are serialized by an in-flight flag; a fetch never
// starts while another fetch or submission is running.
type Orchestrator struct {
	gateway    Gateway
	processor  processor.Processor
	reconciler CreditApplier
	probe      ReachabilityChecker
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	now        func() time.Time

	staleTTL        time.Duration
	maxStaleRetries int
	refreshInterval time.Duration

	mu         sync.Mutex
	generation uint64
	closed     bool
	sess       *session.Context
	clock      session.Clock
	auth       *intent.PaymentAuthorization
	state      State
	inFlight   bool
	consumed   bool
	// rateLimitedUntil is server-imposed and deliberately survives session
	// reopen.
	rateLimitedUntil time.Time

	updates chan State
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProbe wires the connectivity probe consulted during classification.
func WithProbe(p ReachabilityChecker) Option {
	return func(o *Orchestrator) { o.probe = p }
}

// WithMetrics wires metrics collection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the orchestrator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithStaleTTL overrides the authorization staleness TTL.
func WithStaleTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) { o.staleTTL = ttl }
}

// WithMaxStaleRetries overrides the per-submit automatic refetch budget.
func WithMaxStaleRetries(n int) Option {
	return func(o *Orchestrator) { o.maxStaleRetries = n }
}

// WithRefreshInterval overrides the background staleness check period.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.refreshInterval = d }
}

// WithNow overrides the time source.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator in the idle phase.
func New(gw Gateway, proc processor.Processor, reconciler CreditApplier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:         gw,
		processor:       proc,
		reconciler:      reconciler,
		logger:          zerolog.Nop(),
		now:             time.Now,
		staleTTL:        session.DefaultStaleTTL,
		maxStaleRetries: DefaultMaxStaleRetries,
		refreshInterval: DefaultRefreshInterval,
		state:           State{Phase: PhaseIdle},
		updates:         make(chan State, 32),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state snapshot.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Updates returns the state change stream. Slow consumers drop updates
// rather than blocking the orchestrator; State() always has the latest.
func (o *Orchestrator) Updates() <-chan State {
	return o.updates
}

// Open starts a brand-new checkout session: all per-session state is reset,
// a fresh session id is generated, and a new authorization is fetched with
// forceNew set so prior authorizations are never reused. It returns once
// the session is ready or failed.
func (o *Orchestrator) Open(ctx context.Context, quantity int64, mode session.Mode) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !mode.Valid() {
		return ErrInvalidMode
	}

	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return ErrBusy
	}
	o.closeLocked()
	o.generation++
	gen := o.generation
	o.closed = false
	o.sess = session.NewContext(quantity, mode, o.now())
	o.clock.Reset()
	o.auth = nil
	o.consumed = false
	o.inFlight = true
	sess := *o.sess
	o.setStateLocked(State{Phase: PhaseFetchingInitial})
	o.stopCh = make(chan struct{})
	o.mu.Unlock()

	o.logger.Info().
		Str("session_id", sess.ID).
		Int64("quantity", sess.TokenQuantity).
		Str("mode", string(sess.PaymentMode)).
		Msg("checkout.session_opened")

	auth, err := o.fetch(ctx, sess, true)

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		// Session closed or reopened while the fetch was in flight; the
		// result belongs to a dead session.
		return nil
	}
	o.inFlight = false
	if err != nil {
		o.failLocked(err)
		return nil
	}
	o.storeFetchedLocked(auth)
	o.setStateLocked(State{Phase: PhaseReady})
	o.startBackgroundRefreshLocked(gen)
	return nil
}

// Submit confirms the purchase with the given card details. Only valid from
// the ready phase. A stale or secretless authorization is refreshed
// synchronously first; stale-authorization confirmation failures are
// absorbed and retried up to the refetch budget before failing.
func (o *Orchestrator) Submit(ctx context.Context, card processor.CardDetails) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.inFlight {
		o.mu.Unlock()
		return ErrBusy
	}
	if o.state.Phase != PhaseReady {
		o.mu.Unlock()
		return ErrNotReady
	}
	gen := o.generation
	sess := *o.sess
	o.inFlight = true
	o.setStateLocked(State{Phase: PhaseSubmitting})
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		if gen == o.generation {
			o.inFlight = false
		}
		o.mu.Unlock()
	}()

	retries := 0
	for {
		o.mu.Lock()
		auth := o.auth
		needsRefresh := auth == nil || !auth.HasSecret() || o.clock.IsStale(o.now(), o.staleTTL)
		if needsRefresh {
			o.setStateLocked(State{Phase: PhaseRefreshingStale})
		}
		o.mu.Unlock()

		if needsRefresh {
			fresh, err := o.fetch(ctx, sess, true)
			o.mu.Lock()
			if gen != o.generation {
				o.mu.Unlock()
				return nil
			}
			if err != nil {
				o.failLocked(err)
				o.mu.Unlock()
				return nil
			}
			o.storeFetchedLocked(fresh)
			if fresh.OwnerCustomerID != "" {
				sess.CustomerID = fresh.OwnerCustomerID
			}
			o.setStateLocked(State{Phase: PhaseSubmitting})
			auth = fresh
			o.mu.Unlock()
		}

		result, err := o.confirm(ctx, sess, auth, card)

		o.mu.Lock()
		if gen != o.generation {
			o.mu.Unlock()
			return nil
		}
		o.mu.Unlock()

		if err == nil {
			switch result.Status {
			case processor.StatusSucceeded:
				return o.settle(ctx, gen, sess, auth, result)
			case processor.StatusRequiresAction:
				o.mu.Lock()
				if gen == o.generation {
					o.setStateLocked(State{Phase: PhaseRequiresAction, ActionSecret: result.ActionSecret})
				}
				o.mu.Unlock()
				return nil
			default:
				o.mu.Lock()
				if gen == o.generation {
					o.setStateLocked(State{
						Phase:          PhaseFailed,
						Classification: outcome.ClassFatal,
						Message:        "payment was not completed",
					})
				}
				o.mu.Unlock()
				return nil
			}
		}

		class := outcome.Classify(err, o.reachable())
		if class == outcome.ClassStaleAuthorization {
			if retries >= o.maxStaleRetries {
				o.mu.Lock()
				if gen == o.generation {
					o.setStateLocked(State{
						Phase:          PhaseFailed,
						Classification: outcome.ClassFatal,
						Message:        "payment session expired repeatedly, please reload and try again",
					})
				}
				o.mu.Unlock()
				return nil
			}
			retries++
			o.metrics.ObserveStaleRetry()
			o.logger.Warn().
				Str("session_id", sess.ID).
				Int("attempt", retries).
				Msg("checkout.stale_authorization_retry")
			o.mu.Lock()
			if gen != o.generation {
				o.mu.Unlock()
				return nil
			}
			// Discard the dead authorization so the next loop iteration
			// refetches before confirming again.
			o.auth = nil
			o.clock.Reset()
			o.mu.Unlock()
			continue
		}

		o.mu.Lock()
		if gen == o.generation {
			o.failWithClassLocked(class, err)
		}
		o.mu.Unlock()
		return nil
	}
}

// Refresh replaces the current authorization on explicit request. It
// respects the rate-limit window and refuses to race an in-flight
// operation.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.inFlight {
		o.mu.Unlock()
		return ErrBusy
	}
	if o.state.Phase != PhaseReady {
		o.mu.Unlock()
		return ErrNotReady
	}
	gen := o.generation
	sess := *o.sess
	o.inFlight = true
	o.setStateLocked(State{Phase: PhaseRefreshingStale})
	o.mu.Unlock()

	auth, err := o.fetch(ctx, sess, true)

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return nil
	}
	o.inFlight = false
	if err != nil {
		o.failLocked(err)
		return nil
	}
	o.storeFetchedLocked(auth)
	o.setStateLocked(State{Phase: PhaseReady})
	return nil
}

// Close invalidates the session. Results of in-flight calls arriving after
// Close are discarded without mutating state or crediting the balance.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeLocked()
	return nil
}

func (o *Orchestrator) closeLocked() {
	if o.stopCh != nil {
		close(o.stopCh)
		o.stopCh = nil
	}
	o.generation++
	o.closed = true
	o.inFlight = false
}

// settle credits the balance and moves to succeeded. The consumed flag plus
// the reconciler's ledger guarantee the credit applies exactly once even if
// a confirmation success is re-delivered.
func (o *Orchestrator) settle(ctx context.Context, gen uint64, sess session.Context, auth *intent.PaymentAuthorization, result processor.ConfirmResult) error {
	if auth.Kind == intent.KindSetup {
		// Setup only stores the card; the purchased tokens still need an
		// initial off-session charge before the credit applies.
		err := o.gateway.CreateInitialCharge(ctx, sess.TokenQuantity, sess.CustomerID, result.PaymentMethodID, sess.ID)
		o.mu.Lock()
		if gen != o.generation {
			o.mu.Unlock()
			return nil
		}
		o.mu.Unlock()
		if err != nil {
			o.mu.Lock()
			if gen == o.generation {
				o.failLocked(err)
			}
			o.mu.Unlock()
			return nil
		}
	}

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return nil
	}
	if o.consumed {
		o.setStateLocked(State{Phase: PhaseSucceeded})
		o.mu.Unlock()
		return nil
	}
	o.consumed = true
	o.mu.Unlock()

	_, err := o.reconciler.Reconcile(ctx, sess, auth.ID)

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return nil
	}
	if err != nil {
		// The charge went through; only the local credit failed. Surfaced
		// distinctly from a failed payment so it gets manual reconciliation
		// instead of a retry.
		o.setStateLocked(State{
			Phase:               PhaseFailed,
			Classification:      outcome.ClassReconciliationFault,
			Message:             "payment succeeded but the token credit could not be recorded",
			ReconciliationFault: true,
		})
		return nil
	}
	o.setStateLocked(State{Phase: PhaseSucceeded})
	o.logger.Info().
		Str("session_id", sess.ID).
		Str("authorization_id", auth.ID).
		Int64("quantity", sess.TokenQuantity).
		Msg("checkout.succeeded")
	return nil
}

// confirm runs the processor confirmation appropriate for the
// authorization kind.
func (o *Orchestrator) confirm(ctx context.Context, sess session.Context, auth *intent.PaymentAuthorization, card processor.CardDetails) (processor.ConfirmResult, error) {
	switch auth.Kind {
	case intent.KindSetup:
		return o.processor.ConfirmSetup(ctx, auth.ID, card)
	default:
		pmID, err := o.processor.CreatePaymentMethod(ctx, card)
		if err != nil {
			return processor.ConfirmResult{}, err
		}
		return o.processor.ConfirmPayment(ctx, auth.ID, pmID)
	}
}

// fetch requests an authorization, honoring the rate-limit window before
// touching the network and extending it when the gateway pushes back.
func (o *Orchestrator) fetch(ctx context.Context, sess session.Context, forceNew bool) (*intent.PaymentAuthorization, error) {
	o.mu.Lock()
	if wait := o.rateLimitedUntil.Sub(o.now()); wait > 0 {
		o.mu.Unlock()
		return nil, &outcome.RateLimitedError{RetryAfter: wait}
	}
	o.mu.Unlock()

	auth, err := o.gateway.RequestAuthorization(ctx, sess.PaymentMode, sess.TokenQuantity, sess.CustomerID, forceNew, sess.ID)
	if err != nil {
		var rl *outcome.RateLimitedError
		if errors.As(err, &rl) {
			o.mu.Lock()
			o.rateLimitedUntil = o.now().Add(rl.RetryAfter)
			o.mu.Unlock()
		}
		return nil, err
	}
	return auth, nil
}

// storeFetchedLocked records a freshly fetched authorization and the lazily
// discovered customer id. Caller holds the lock.
func (o *Orchestrator) storeFetchedLocked(auth *intent.PaymentAuthorization) {
	o.auth = auth
	o.clock.RecordFetch(o.now())
	if o.sess != nil && o.sess.CustomerID == "" && auth.OwnerCustomerID != "" {
		o.sess.CustomerID = auth.OwnerCustomerID
	}
	o.metrics.ObserveIntentIssued(string(auth.Kind))
}

// startBackgroundRefreshLocked begins the periodic staleness check for the
// current session. Caller holds the lock.
func (o *Orchestrator) startBackgroundRefreshLocked(gen uint64) {
	if o.refreshInterval <= 0 {
		return
	}
	stopCh := o.stopCh
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				o.backgroundRefresh(gen)
			}
		}
	}()
}

// backgroundRefresh silently replaces a stale authorization while the
// session sits in ready. Skipped whenever a fetch or submission is already
// underway so it never races the user's own submit.
func (o *Orchestrator) backgroundRefresh(gen uint64) {
	o.mu.Lock()
	if gen != o.generation || o.inFlight || o.state.Phase != PhaseReady {
		o.mu.Unlock()
		return
	}
	if !o.clock.IsStale(o.now(), o.staleTTL) {
		o.mu.Unlock()
		return
	}
	if o.rateLimitedUntil.After(o.now()) {
		o.mu.Unlock()
		return
	}
	sess := *o.sess
	o.inFlight = true
	o.mu.Unlock()

	o.metrics.ObserveRefresh("stale")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	auth, err := o.fetch(ctx, sess, true)

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return
	}
	o.inFlight = false
	if err != nil {
		// Background refreshes fail quietly; the pre-submit freshness check
		// retries with the user present.
		o.logger.Warn().
			Str("session_id", sess.ID).
			Err(err).
			Msg("checkout.background_refresh_failed")
		return
	}
	o.storeFetchedLocked(auth)
}

func (o *Orchestrator) failLocked(err error) {
	o.failWithClassLocked(outcome.Classify(err, o.reachable()), err)
}

func (o *Orchestrator) failWithClassLocked(class outcome.Classification, err error) {
	st := State{
		Phase:          PhaseFailed,
		Classification: class,
		Message:        err.Error(),
	}
	if class == outcome.ClassRateLimited {
		var rl *outcome.RateLimitedError
		if errors.As(err, &rl) {
			st.RetryAfter = rl.RetryAfter
		}
		st.Message = "too many payment attempts, please wait before retrying"
		o.metrics.ObserveRateLimitReject()
	}
	o.setStateLocked(st)
	o.logger.Warn().
		Str("classification", string(class)).
		Err(err).
		Msg("checkout.failed")
}

func (o *Orchestrator) setStateLocked(st State) {
	o.state = st
	select {
	case o.updates <- st:
	default:
	}
}

func (o *Orchestrator) reachable() bool {
	if o.probe == nil {
		return true
	}
	return o.probe.Reachable()
}
