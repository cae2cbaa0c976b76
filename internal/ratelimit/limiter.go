// Package ratelimit provides process-wide admission control for operations
// keyed by an arbitrary string, typically "tenant:operation".
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter admits at most one request per key per interval. A denied request
// receives the remaining wait before the key opens again, suitable for a
// Retry-After response header.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	keys     map[string]*rate.Limiter

	// now is injectable for tests
	now func() time.Time
}

// New creates a keyed limiter admitting one request per interval per key.
func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		keys:     make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

// Allow reports whether a request for key may proceed now. When denied, the
// returned duration is how long the caller should wait before retrying.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	lim := l.limiterFor(key)

	l.mu.Lock()
	t := l.now()
	l.mu.Unlock()

	r := lim.ReserveN(t, 1)
	if !r.OK() {
		return false, l.interval
	}
	delay := r.DelayFrom(t)
	if delay > 0 {
		// Undo the reservation so a denied call does not push the window out.
		r.CancelAt(t)
		return false, delay
	}
	return true, 0
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.keys[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.interval), 1)
		l.keys[key] = lim
	}
	return lim
}
