package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucket is one key's token bucket.
type bucket struct {
	tokens *rate.Limiter
	seen   time.Time
}

// RateLimiter controls how frequently a caller may perform an action.
type RateLimiter interface {
	Allow(key string) bool
}

// RateLimitConfig allows Requests events per Window for each key, plus Burst.
// Keys idle for longer than TTL are forgotten.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Burst    int
	TTL      time.Duration
}

// IPRateLimiter keeps a token bucket per key, usually "scope:client-ip".
// Buckets idle for longer than the TTL are swept on the next Allow call.
type IPRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// NewIPRateLimiter constructs a per-key rate limiter, filling unset config
// fields with one request per second, a burst of one and a five minute TTL.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.Requests <= 0 {
		cfg.Requests = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}

	return &IPRateLimiter{
		buckets: map[string]*bucket{},
		limit:   rate.Every(cfg.Window / time.Duration(cfg.Requests)),
		burst:   cfg.Burst,
		ttl:     cfg.TTL,
		now:     time.Now,
	}
}

// Allow spends one token from key's bucket if one is available.
func (l *IPRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.tokens.AllowN(now, 1)
}

// Len reports how many buckets are live.
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *IPRateLimiter) sweepLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.seen) > l.ttl {
			delete(l.buckets, key)
		}
	}
}

// WithNowFunc replaces the clock.
func (l *IPRateLimiter) WithNowFunc(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}
