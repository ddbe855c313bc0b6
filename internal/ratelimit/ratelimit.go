// Package ratelimit implements sliding-window admission control for
// outbound calls to an external service. One Limiter exists per service;
// the window is recomputed continuously from admission timestamps, never
// in fixed buckets, so bursts cannot straddle a bucket boundary.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter admits at most maxCalls calls within any trailing window.
type Limiter struct {
	maxCalls int
	window   time.Duration
	now      func() time.Time

	mu    sync.Mutex
	calls []time.Time // admission timestamps, oldest first
}

// New creates a limiter. maxCalls and window must be positive.
func New(maxCalls int, window time.Duration) (*Limiter, error) {
	if maxCalls <= 0 {
		return nil, fmt.Errorf("ratelimit: max calls must be positive, got %d", maxCalls)
	}
	if window <= 0 {
		return nil, fmt.Errorf("ratelimit: window must be positive, got %s", window)
	}
	return &Limiter{
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
	}, nil
}

// Acquire blocks until a call slot is available, then reserves it.
// The wait happens outside the mutex so other callers and limiters are
// unaffected; admission order follows wake-up order (FIFO in practice,
// no stronger guarantee).
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := l.tryReserve()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire reserves a slot if one is free, returning immediately.
func (l *Limiter) TryAcquire() bool {
	_, ok := l.tryReserve()
	return ok
}

// Remaining returns how many calls can currently be admitted without waiting.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return l.maxCalls - len(l.calls)
}

// tryReserve admits the call if the trailing window has room, recording the
// timestamp. Otherwise it returns how long until the oldest admission ages
// out of the window.
func (l *Limiter) tryReserve() (wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	if len(l.calls) < l.maxCalls {
		l.calls = append(l.calls, now)
		return 0, true
	}

	wait = l.calls[0].Add(l.window).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// evict drops timestamps that have aged out of the trailing window.
// Caller holds l.mu.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}
