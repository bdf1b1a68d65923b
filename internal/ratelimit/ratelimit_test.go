package ratelimit

import (
	"testing"
	"time"
)

// newTestLimiter builds a limiter with a controllable clock and no background
// sweeper.
func newTestLimiter(limit int, window time.Duration) (*Limiter, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := &Limiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     func() time.Time { return now },
		done:    make(chan struct{}),
	}
	return l, &now
}

func TestAllowWithinLimit(t *testing.T) {
	l, _ := newTestLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		if !l.Allow("user-1") {
			t.Fatalf("Allow() call %d = false, want true", i+1)
		}
	}
	if l.Allow("user-1") {
		t.Fatal("Allow() beyond limit = true, want false")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	if !l.Allow("a") {
		t.Fatal("Allow(a) = false, want true")
	}
	if l.Allow("a") {
		t.Fatal("second Allow(a) = true, want false")
	}
	if !l.Allow("b") {
		t.Fatal("Allow(b) = false, want true")
	}
}

func TestRefillProportional(t *testing.T) {
	l, now := newTestLimiter(10, time.Minute)

	for i := 0; i < 10; i++ {
		l.Allow("k")
	}
	if l.Allow("k") {
		t.Fatal("Allow() on empty bucket = true, want false")
	}

	// 12 seconds is a fifth of the window, so two tokens come back.
	*now = now.Add(12 * time.Second)
	if !l.Allow("k") {
		t.Fatal("Allow() after partial refill = false, want true")
	}
	if !l.Allow("k") {
		t.Fatal("second Allow() after partial refill = false, want true")
	}
	if l.Allow("k") {
		t.Fatal("third Allow() after partial refill = true, want false")
	}
}

func TestRefillKeepsFractionalProgress(t *testing.T) {
	l, now := newTestLimiter(10, time.Minute)

	for i := 0; i < 10; i++ {
		l.Allow("k")
	}

	// 9 seconds earns 1.5 tokens; one is granted now and the remaining half
	// must not be lost on the next refill.
	*now = now.Add(9 * time.Second)
	if !l.Allow("k") {
		t.Fatal("Allow() after 9s = false, want true")
	}
	if l.Allow("k") {
		t.Fatal("second Allow() after 9s = true, want false")
	}
	*now = now.Add(3 * time.Second)
	if !l.Allow("k") {
		t.Fatal("Allow() after further 3s = false, want true")
	}
}

func TestRefillCapsAtLimit(t *testing.T) {
	l, now := newTestLimiter(3, time.Minute)

	l.Allow("k")
	*now = now.Add(time.Hour)

	for i := 0; i < 3; i++ {
		if !l.Allow("k") {
			t.Fatalf("Allow() call %d after long idle = false, want true", i+1)
		}
	}
	if l.Allow("k") {
		t.Fatal("Allow() beyond refilled cap = true, want false")
	}
}

func TestSweepEvictsIdleBuckets(t *testing.T) {
	l, now := newTestLimiter(1, time.Minute)

	l.Allow("stale")
	*now = now.Add(idleEvictAfter + time.Second)
	l.Allow("fresh")
	l.sweep()

	l.mu.Lock()
	_, staleKept := l.buckets["stale"]
	_, freshKept := l.buckets["fresh"]
	l.mu.Unlock()

	if staleKept {
		t.Error("sweep kept an idle bucket")
	}
	if !freshKept {
		t.Error("sweep evicted an active bucket")
	}
}
