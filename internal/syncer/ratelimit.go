// Package syncer drives incremental, checkpointed synchronization of health
// data streams from the Garmin source into the local store.
package syncer

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces calls to the external source. A single instance is
// shared by every stream so the aggregate call rate stays bounded no matter
// how many streams sync concurrently.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewRateLimiter constructs a limiter enforcing the given minimum interval
// between grants.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Acquire blocks until the caller's reserved slot arrives or ctx is
// cancelled. Slots are reserved in lock-acquisition order, so grants are
// handed out FIFO.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	var wait time.Duration
	if l.next.After(now) {
		wait = l.next.Sub(now)
		l.next = l.next.Add(l.interval)
	} else {
		l.next = now.Add(l.interval)
	}
	l.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
