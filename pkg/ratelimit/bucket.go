// Package ratelimit implements the per-provider token bucket rate
// limiter (spec.md §4.A). The token math follows the same
// tokens-per-elapsed-time refill the teacher's gateway tenant rate
// limiter uses (internal/reference/gateway_ratelimit.go.txt), adapted
// from a non-blocking Allow() into a blocking Acquire() suited to a
// fan-out that is willing to wait briefly for a slot rather than reject.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a classical token bucket: one bucket per provider, shared
// across concurrent fan-outs, mutually exclusive per bucket (spec.md §5).
type Bucket struct {
	mu         sync.Mutex
	rate       float64       // tokens added per Period
	period     time.Duration
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
}

// NewBucket creates a token bucket that permits `rate` acquisitions per
// `period`, starting full.
func NewBucket(rate float64, period time.Duration) *Bucket {
	if period <= 0 {
		period = time.Second
	}
	if rate <= 0 {
		rate = 1
	}
	return &Bucket{
		rate:       rate,
		period:     period,
		tokens:     rate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

func (b *Bucket) refillLocked(at time.Time) {
	elapsed := at.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed.Seconds() * (b.rate / b.period.Seconds())
	if b.tokens > b.rate {
		b.tokens = b.rate
	}
	b.lastRefill = at
}

// Acquire blocks until a token is available or ctx is cancelled. On
// cancellation it aborts without deducting a token (spec.md §4.A, §5).
func (b *Bucket) Acquire(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := b.now()
		b.refillLocked(now)
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - b.tokens) * b.period.Seconds() / b.rate * float64(time.Second))
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// loop and re-check; another waiter may have consumed the
			// token that refilled during our wait.
		}
	}
}

// TryAcquire attempts a non-blocking acquisition, used by
// providers.SearchOptions.NonBlocking callers (the enrichment fallback
// fetch, spec.md §4.H step 5) that would rather skip a throttled
// provider than queue behind Acquire on a tight soft deadline.
func (b *Bucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(b.now())
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Registry owns one Bucket per provider name, shared across the
// process (spec.md §3 Ownership & lifecycle).
type Registry struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
}

func NewRegistry() *Registry {
	return &Registry{buckets: make(map[string]*Bucket)}
}

// Get returns (creating if needed) the bucket for a provider.
func (r *Registry) Get(provider string, rate float64, period time.Duration) *Bucket {
	r.mu.RLock()
	b, ok := r.buckets[provider]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.buckets[provider]; ok {
		return b
	}
	b = NewBucket(rate, period)
	r.buckets[provider] = b
	return b
}
