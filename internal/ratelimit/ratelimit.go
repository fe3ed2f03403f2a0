// Package ratelimit gates tool invocations per client with a token bucket.
// Buckets refill lazily at check time; there is no background timer.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of one Allow check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetMs   int64
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter is a per-client token bucket. Capacity is the configured burst;
// each elapsed interval refills maxRequests tokens.
type Limiter struct {
	burst       float64
	interval    time.Duration
	maxRequests float64

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// New creates a limiter. burst is the bucket capacity, maxRequests the number
// of tokens added per interval.
func New(burst int, interval time.Duration, maxRequests int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if maxRequests < 1 {
		maxRequests = burst
	}
	return &Limiter{
		burst:       float64(burst),
		interval:    interval,
		maxRequests: float64(maxRequests),
		buckets:     make(map[string]*bucket),
		now:         time.Now,
	}
}

// Allow checks and consumes one token for key. Refill happens here, by whole
// elapsed intervals, never from a background goroutine.
func (l *Limiter) Allow(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastRefill: now}
		l.buckets[key] = b
	}

	intervals := now.Sub(b.lastRefill) / l.interval
	if intervals > 0 {
		b.tokens += float64(intervals) * l.maxRequests
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.lastRefill = b.lastRefill.Add(intervals * l.interval)
	}

	resetMs := l.interval.Milliseconds() - now.Sub(b.lastRefill).Milliseconds()
	if b.tokens < 1 {
		return Decision{Allowed: false, Remaining: 0, ResetMs: resetMs}
	}

	b.tokens--
	return Decision{Allowed: true, Remaining: int(b.tokens), ResetMs: resetMs}
}
