// Package probe detects whether the payment processor's client-library
// origin is reachable at all. Ad blockers and corporate firewalls commonly
// block it outright, which otherwise shows up as confusing generic errors.
package probe

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hireloop/tokenpay/internal/httputil"
	"github.com/hireloop/tokenpay/internal/metrics"
)

// DefaultTimeout bounds a single probe attempt.
const DefaultTimeout = 5 * time.Second

// Probe performs best-effort HEAD checks against the processor origin and
// caches the last result. It never blocks the checkout critical path.
type Probe struct {
	origin     string
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	mu        sync.Mutex
	reachable bool
	checkedAt time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a probe for the given origin. A zero timeout uses the default.
func New(origin string, timeout time.Duration, logger zerolog.Logger, metricsCollector *metrics.Metrics) *Probe {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Probe{
		origin:     origin,
		httpClient: httputil.NewClient(timeout),
		logger:     logger,
		metrics:    metricsCollector,
		reachable:  true, // assume reachable until proven otherwise
		stopCh:     make(chan struct{}),
	}
}

// CheckReachable performs one probe and updates the cached result.
func (p *Probe) CheckReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.origin, nil)
	if err != nil {
		return p.record(false)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("origin", p.origin).
			Msg("probe.unreachable")
		return p.record(false)
	}
	resp.Body.Close()

	// Any HTTP response means the origin is not blocked; status is irrelevant.
	return p.record(true)
}

// Reachable returns the last cached probe result without any network call.
func (p *Probe) Reachable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reachable
}

// Start runs opportunistic background probing at the given interval until
// Close is called. An immediate first check runs before the first tick.
func (p *Probe) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.CheckReachable(context.Background())

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.CheckReachable(context.Background())
			}
		}
	}()
}

// Close stops background probing.
func (p *Probe) Close() error {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
	return nil
}

func (p *Probe) record(reachable bool) bool {
	p.mu.Lock()
	p.reachable = reachable
	p.checkedAt = time.Now()
	p.mu.Unlock()

	p.metrics.ObserveProbe(reachable)
	return reachable
}
