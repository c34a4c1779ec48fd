// Package ratelimit implements the Rate-Limit Oracle (spec §4.A): a
// passive, per-OAuth-app observer of Reddit's rate-limit response headers.
// It issues no HTTP calls of its own — probing quota must be free, per the
// spec's transport-cost rationale — so it is fed exclusively by
// internal/reddit's counting transport.
//
// Spec §9 flags the teacher's module-level singleton rate limiter as an
// anti-pattern to correct: this Oracle is always an explicitly constructed,
// per-worker value injected into the HTTP client, never a package-level
// shared instance.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/onnwee/reddit-fleet/internal/metrics"
)

// Snapshot is the oracle's view of one OAuth app's quota, as last observed
// from response headers.
type Snapshot struct {
	Remaining int
	Used      int
	ResetAt   time.Time
}

// Oracle tracks quota for exactly one OAuth application. Create one per
// worker/app; never share across tenants (spec §5: "owned exclusively by
// the worker that uses that app").
type Oracle struct {
	mu        sync.Mutex
	snapshot  Snapshot
	threshold int
	now       func() time.Time
}

// New constructs an Oracle with a given `remaining` threshold (default 50
// per spec §4.A). A zero threshold falls back to the default.
func New(threshold int) *Oracle {
	if threshold <= 0 {
		threshold = 50
	}
	return &Oracle{
		threshold: threshold,
		// optimistic until the first response is observed.
		snapshot: Snapshot{Remaining: threshold, Used: 0, ResetAt: time.Now()},
		now:      time.Now,
	}
}

// Observe records a header-derived snapshot. Called by the counting
// transport after every response; the oracle itself never issues a call.
func (o *Oracle) Observe(remaining, used int, resetAt time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshot = Snapshot{Remaining: remaining, Used: used, ResetAt: resetAt}
}

// Snapshot returns the current quota view.
func (o *Oracle) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot
}

// AwaitCapacity blocks until there is quota to spend (spec §4.A contract).
// If remaining >= threshold, it returns immediately. Otherwise it sleeps
// until reset_at + 5s guard, honoring ctx cancellation so the rotation
// loop's suspension points stay cancellable (spec §5).
func (o *Oracle) AwaitCapacity(ctx context.Context) error {
	snap := o.Snapshot()
	if snap.Remaining >= o.threshold {
		return nil
	}

	wait := snap.ResetAt.Add(5 * time.Second).Sub(o.now())
	if wait <= 0 {
		return nil
	}

	metrics.RateLimitWaitsTotal.Inc()
	start := o.now()
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		metrics.RateLimitWaitSeconds.Observe(time.Since(start).Seconds())
		return nil
	case <-ctx.Done():
		metrics.RateLimitWaitSeconds.Observe(time.Since(start).Seconds())
		return ctx.Err()
	}
}
