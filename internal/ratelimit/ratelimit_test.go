package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests advance time manually.
type fakeClock struct {
	mu  sync.Mutex
	t   time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, maxCalls int, window time.Duration) (*Limiter, *fakeClock) {
	t.Helper()
	l, err := New(maxCalls, window)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	l.now = clock.now
	return l, clock
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(0, time.Minute); err == nil {
		t.Error("expected error for zero max calls")
	}
	if _, err := New(-1, time.Minute); err == nil {
		t.Error("expected error for negative max calls")
	}
	if _, err := New(5, 0); err == nil {
		t.Error("expected error for zero window")
	}
}

func TestTryAcquireStopsAtLimit(t *testing.T) {
	l, _ := newTestLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if !l.TryAcquire() {
			t.Fatalf("call %d should be admitted", i+1)
		}
	}
	if l.TryAcquire() {
		t.Error("4th call inside window should be denied")
	}
}

func TestWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(t, 2, 10*time.Second)

	if !l.TryAcquire() || !l.TryAcquire() {
		t.Fatal("first two calls should be admitted")
	}
	if l.TryAcquire() {
		t.Fatal("3rd call should be denied")
	}

	// Oldest call ages out after the window passes.
	clock.advance(10*time.Second + time.Millisecond)
	if !l.TryAcquire() {
		t.Error("call should be admitted after window slides")
	}
}

func TestNeverMoreThanMaxInsideWindow(t *testing.T) {
	l, clock := newTestLimiter(t, 5, 10*time.Second)

	// Admit calls while advancing the clock irregularly; count admissions
	// inside every trailing window.
	var admitted []time.Time
	for i := 0; i < 40; i++ {
		if l.TryAcquire() {
			admitted = append(admitted, clock.now())
		}
		clock.advance(700 * time.Millisecond)
	}

	for _, end := range admitted {
		start := end.Add(-10 * time.Second)
		count := 0
		for _, ts := range admitted {
			if ts.After(start) && !ts.After(end) {
				count++
			}
		}
		if count > 5 {
			t.Fatalf("window ending %v admitted %d calls, limit is 5", end, count)
		}
	}
}

func TestAcquireRespectsContext(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Hour)
	if !l.TryAcquire() {
		t.Fatal("first call should be admitted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	if err == nil {
		t.Fatal("expected context error while window is full")
	}
}

func TestAcquireUnblocksWhenSlotFrees(t *testing.T) {
	l, err := New(1, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !l.TryAcquire() {
		t.Fatal("first call should be admitted")
	}

	start := time.Now()
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if waited := time.Since(start); waited < 30*time.Millisecond {
		t.Errorf("expected to wait for window to slide, waited %v", waited)
	}
}

func TestRemaining(t *testing.T) {
	l, _ := newTestLimiter(t, 3, time.Minute)
	if got := l.Remaining(); got != 3 {
		t.Errorf("Remaining = %d, want 3", got)
	}
	l.TryAcquire()
	l.TryAcquire()
	if got := l.Remaining(); got != 1 {
		t.Errorf("Remaining = %d, want 1", got)
	}
}
