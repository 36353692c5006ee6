package channels

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedKeys caps the number of tracked rate-limit keys to prevent
	// memory exhaustion from attackers rotating source IPs/keys.
	maxTrackedKeys = 4096

	// idleEvictAfter is how long a key may go unseen before it can be pruned.
	idleEvictAfter = 2 * time.Minute
)

type rateLimitEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// WebhookRateLimiter applies a per-key token bucket to webhook requests and
// bounds the number of tracked keys. Safe for concurrent use.
type WebhookRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewWebhookRateLimiter allows rpm requests per minute per key, with a burst
// of the same size. rpm <= 0 returns nil; a nil limiter allows everything.
func NewWebhookRateLimiter(rpm int) *WebhookRateLimiter {
	if rpm <= 0 {
		return nil
	}
	return &WebhookRateLimiter{
		entries: make(map[string]*rateLimitEntry),
		limit:   rate.Every(time.Minute / time.Duration(rpm)),
		burst:   rpm,
		now:     time.Now,
	}
}

// Allow returns true if the key is within rate limits.
// Prunes idle entries and enforces a hard cap on tracked keys.
func (r *WebhookRateLimiter) Allow(key string) bool {
	if r == nil {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	e, ok := r.entries[key]
	if !ok {
		if len(r.entries) >= maxTrackedKeys {
			r.prune(now)
		}
		e = &rateLimitEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// prune drops idle keys, then evicts the least recently seen key until
// there is room for one more. Caller holds mu.
func (r *WebhookRateLimiter) prune(now time.Time) {
	for k, e := range r.entries {
		if now.Sub(e.lastSeen) >= idleEvictAfter {
			delete(r.entries, k)
		}
	}
	for len(r.entries) >= maxTrackedKeys {
		var oldestKey string
		var oldest time.Time
		for k, e := range r.entries {
			if oldestKey == "" || e.lastSeen.Before(oldest) {
				oldestKey, oldest = k, e.lastSeen
			}
		}
		delete(r.entries, oldestKey)
	}
}

// Len returns the number of tracked keys.
func (r *WebhookRateLimiter) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
