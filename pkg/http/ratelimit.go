package xhttp

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyFunc extracts the rate limit bucket for a request. An empty key skips
// limiting.
type KeyFunc func(ctx *RequestCtx) string

// RateLimiter keeps one token bucket per key and forgets buckets that stayed
// idle longer than ttl.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rps      rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(requestsPerSecond float64, burst int, ttl time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (l *RateLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	l.evict(now)
	return entry.limiter.AllowN(now, 1)
}

func (l *RateLimiter) evict(now time.Time) {
	for k, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.ttl {
			delete(l.limiters, k)
		}
	}
}

// Middleware rejects requests over the limit with 429.
func (l *RateLimiter) Middleware(key KeyFunc) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return func(ctx *RequestCtx) {
			k := key(ctx)
			if k != "" && !l.Allow(k) {
				ctx.Response.Header.Set("Retry-After", "1")
				WriteJSONError(ctx, StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next(ctx)
		}
	}
}

// Wrap applies the limiter to a single route handler.
func (l *RateLimiter) Wrap(key KeyFunc, h RequestHandler) RequestHandler {
	return l.Middleware(key)(h)
}
