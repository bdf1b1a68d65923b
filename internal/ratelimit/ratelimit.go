// Package ratelimit provides an in-process token-bucket limiter keyed by
// opaque strings. Callers compose keys from whatever dimensions they need,
// e.g. "msg:<user>:<channel>" or "auth:<ip>".
package ratelimit

import (
	"sync"
	"time"
)

// Sweeper cadence: buckets untouched for idleEvictAfter are dropped so the
// map does not grow with every client that ever connected.
const (
	sweepInterval   = 60 * time.Second
	idleEvictAfter  = 120 * time.Second
)

type bucket struct {
	tokens   int
	lastFill time.Time
	lastUsed time.Time
}

// Limiter is a token-bucket rate limiter. Each key gets its own bucket of
// `limit` tokens refilled continuously over `window`.
type Limiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	now  func() time.Time
	done chan struct{}
	once sync.Once
}

// New creates a limiter allowing `limit` operations per `window` per key and
// starts its background sweeper.
func New(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow consumes one token from the key's bucket, reporting whether the
// operation is within the limit. A new key starts with a full bucket.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.limit, lastFill: now}
		l.buckets[key] = b
	} else {
		l.refill(b, now)
	}
	b.lastUsed = now

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// refill adds back floor(elapsed/window*limit) tokens since the last refill,
// capped at the bucket size. lastFill only advances by the time the granted
// tokens account for, so fractional progress is never lost.
func (l *Limiter) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastFill)
	if elapsed <= 0 {
		return
	}
	grant := int(int64(elapsed) * int64(l.limit) / int64(l.window))
	if grant <= 0 {
		return
	}
	b.tokens += grant
	if b.tokens >= l.limit {
		b.tokens = l.limit
		b.lastFill = now
		return
	}
	b.lastFill = b.lastFill.Add(time.Duration(int64(grant) * int64(l.window) / int64(l.limit)))
}

// Close stops the background sweeper.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	cutoff := l.now().Add(-idleEvictAfter)
	l.mu.Lock()
	for key, b := range l.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
	l.mu.Unlock()
}
