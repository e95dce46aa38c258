package llmadapter

import (
	"context"
	"sync"
	"time"
)

// RateLimitPolicy configures a provider's token bucket: `requests` permits
// refilled every `period`, per spec §5 ("tokens, requests, period... a
// token bucket gates outbound calls; on exhaustion callers wait").
type RateLimitPolicy struct {
	Requests int
	Period   time.Duration
}

// bucket is a simple token bucket: Requests tokens, refilled fully every
// Period. Waiters block until a token is available rather than failing.
type bucket struct {
	mu       sync.Mutex
	tokens   int
	capacity int
	period   time.Duration
	lastFill time.Time
}

func newBucket(policy RateLimitPolicy) *bucket {
	return &bucket{tokens: policy.Requests, capacity: policy.Requests, period: policy.Period, lastFill: time.Now()}
}

func (b *bucket) wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.refill()
		if b.tokens > 0 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()

		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *bucket) refill() {
	if b.period <= 0 {
		b.tokens = b.capacity
		return
	}
	elapsed := time.Since(b.lastFill)
	if elapsed >= b.period {
		b.tokens = b.capacity
		b.lastFill = time.Now()
	}
}

// RateLimiterRegistry holds one bucket per provider name, initialized at
// process start and read-mostly thereafter (spec §9's "process-wide state
// is limited to... the rate-limit token buckets per provider").
type RateLimiterRegistry struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	policies map[string]RateLimitPolicy
}

// NewRateLimiterRegistry builds a registry from a provider→policy map.
func NewRateLimiterRegistry(policies map[string]RateLimitPolicy) *RateLimiterRegistry {
	return &RateLimiterRegistry{buckets: map[string]*bucket{}, policies: policies}
}

// Wait blocks until a token for provider is available, or ctx ends. A
// provider with no configured policy never blocks.
func (r *RateLimiterRegistry) Wait(ctx context.Context, provider string) error {
	policy, configured := r.policies[provider]
	if !configured || policy.Requests <= 0 {
		return nil
	}

	r.mu.Lock()
	b, ok := r.buckets[provider]
	if !ok {
		b = newBucket(policy)
		r.buckets[provider] = b
	}
	r.mu.Unlock()

	return b.wait(ctx)
}
