// Package ratelimit implements fixed-window request counting keyed by
// client identity. State is process-local: correctness holds per process,
// not across horizontally scaled instances.
package ratelimit

import (
	"log"
	"sync"
	"time"
)

// Result is the outcome of a single Check call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

type record struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key within non-overlapping windows. Expired
// records are reinitialized lazily on the next Check; a sweep goroutine
// owned by the limiter purges fully expired keys to bound memory.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	records map[string]*record

	now func() time.Time

	sweepOnce sync.Once
	done      chan struct{}
}

// New creates a limiter allowing limit requests per key per window.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		records: make(map[string]*record),
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Check records one request for key and reports whether it is allowed.
// The increment and comparison happen under one lock so concurrent
// requests never undercount.
func (l *Limiter) Check(key string) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok || !now.Before(rec.resetAt) {
		// First request in a fresh window, or lazy expiry of a stale one.
		rec = &record{count: 1, resetAt: now.Add(l.window)}
		l.records[key] = rec
		return Result{Allowed: true, Remaining: l.limit - 1, ResetIn: l.window}
	}

	rec.count++
	resetIn := rec.resetAt.Sub(now)

	if rec.count > l.limit {
		return Result{Allowed: false, Remaining: 0, ResetIn: resetIn}
	}

	return Result{Allowed: true, Remaining: l.limit - rec.count, ResetIn: resetIn}
}

// Limit returns the configured per-window ceiling.
func (l *Limiter) Limit() int {
	return l.limit
}

// StartSweep launches the background purge loop. Safe to call once;
// Stop terminates it.
func (l *Limiter) StartSweep(interval time.Duration) {
	l.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-l.done:
					return
				case <-ticker.C:
					if purged := l.sweep(); purged > 0 {
						log.Printf("[ratelimit] purged %d expired records", purged)
					}
				}
			}
		}()
	})
}

// Stop terminates the sweep goroutine.
func (l *Limiter) Stop() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

func (l *Limiter) sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	purged := 0
	for key, rec := range l.records {
		if !now.Before(rec.resetAt) {
			delete(l.records, key)
			purged++
		}
	}
	return purged
}
