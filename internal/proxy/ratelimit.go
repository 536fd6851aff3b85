package proxy

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per user. The set of buckets is an LRU
// so an unbounded number of users cannot grow memory; an evicted user simply
// starts again with a full bucket.
type RateLimiter struct {
	limiters *lru.Cache[string, *rate.Limiter]
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter allowing rps requests per second per user
// with the given burst. maxUsers bounds the number of tracked users.
func NewRateLimiter(rps float64, burst, maxUsers int) (*RateLimiter, error) {
	if rps <= 0 {
		return nil, fmt.Errorf("rate limit: requests_per_second must be positive, got %v", rps)
	}
	if burst <= 0 {
		burst = max(1, int(rps))
	}
	cache, err := lru.New[string, *rate.Limiter](maxUsers)
	if err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return &RateLimiter{
		limiters: cache,
		rps:      rate.Limit(rps),
		burst:    burst,
	}, nil
}

// getLimiter returns the bucket for userID, creating it on first use.
func (rl *RateLimiter) getLimiter(userID string) *rate.Limiter {
	if limiter, ok := rl.limiters.Get(userID); ok {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring the lock
	if limiter, ok := rl.limiters.Get(userID); ok {
		return limiter
	}
	limiter := rate.NewLimiter(rl.rps, rl.burst)
	rl.limiters.Add(userID, limiter)
	return limiter
}

// Allow reports whether userID may make a request now. A nil RateLimiter
// allows everything.
func (rl *RateLimiter) Allow(userID string) bool {
	if rl == nil {
		return true
	}
	return rl.getLimiter(userID).Allow()
}

// Tracked returns the number of users with a live bucket.
func (rl *RateLimiter) Tracked() int {
	if rl == nil {
		return 0
	}
	return rl.limiters.Len()
}
