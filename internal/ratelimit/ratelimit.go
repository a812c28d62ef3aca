// Package ratelimit bounds abuse of the public token endpoints with a
// process-local counter per (namespace, key). Counters are not durable
// and each process enforces its own limit; that is acceptable for
// abuse mitigation, which is this package's only job.
package ratelimit

import (
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per (namespace, key) within a fixed window.
// The first request in a window starts the counter at 1 with
// resetAt = now + window; once the counter reaches the limit further
// requests are rejected until resetAt passes.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   int
	window  time.Duration
	stop    chan struct{}
	now     func() time.Time
}

func New(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		limit:   limit,
		window:  window,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go l.sweepLoop()
	return l
}

// Allow reports whether a request identified by (namespace, key) may
// proceed, and counts it if so.
func (l *Limiter) Allow(namespace, key string) bool {
	now := l.now()
	k := namespace + "\x00" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[k]
	if !ok || !now.Before(e.resetAt) {
		l.entries[k] = &entry{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if e.count >= l.limit {
		return false
	}
	e.count++
	return true
}

// RetryAfter returns how long the caller must wait before (namespace, key)
// is admitted again; zero when it would be admitted now.
func (l *Limiter) RetryAfter(namespace, key string) time.Duration {
	now := l.now()
	k := namespace + "\x00" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[k]
	if !ok || !now.Before(e.resetAt) || e.count < l.limit {
		return 0
	}
	return e.resetAt.Sub(now)
}

// Stop terminates the background sweep. The limiter remains usable;
// only the memory reclamation stops.
func (l *Limiter) Stop() {
	close(l.stop)
}

// sweepLoop drops expired entries. Allow resets expired windows on its
// own, so the sweep cadence only affects memory, never decisions.
func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, k)
		}
	}
}
