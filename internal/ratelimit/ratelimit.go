// Package ratelimit implements the per-credential sliding-window limiter.
// State is process-local by design: losing it on restart only self-heals to
// "no history".
package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultWindow = time.Minute
	DefaultCap    = 10

	pruneThreshold = 4096
)

// Decision carries the allow verdict plus the Retry-After hint for denials.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type window struct {
	start time.Time
	count int
}

type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	window  time.Duration
	cap     int
	now     func() time.Time
}

func New(windowDur time.Duration, cap int) *Limiter {
	if windowDur <= 0 {
		windowDur = DefaultWindow
	}
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Limiter{
		windows: make(map[string]*window),
		window:  windowDur,
		cap:     cap,
		now:     time.Now,
	}
}

// Allow counts the call against key's current window and decides. The
// increment happens before the comparison: the call that crosses the cap is
// itself rejected but still counted, so the window stays saturated until it
// rolls over.
func (l *Limiter) Allow(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, ok := l.windows[key]
	if !ok {
		if len(l.windows) >= pruneThreshold {
			l.prune(now)
		}
		w = &window{start: now}
		l.windows[key] = w
	}

	if now.Sub(w.start) > l.window {
		w.count = 0
		w.start = now
	}

	w.count++
	if w.count <= l.cap {
		return Decision{Allowed: true}
	}

	retry := w.start.Add(l.window).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return Decision{Allowed: false, RetryAfter: retry}
}

// prune drops windows that already expired; called with lock held.
func (l *Limiter) prune(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) > l.window {
			delete(l.windows, k)
		}
	}
}
