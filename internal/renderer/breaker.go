package renderer

import (
	"sync"
	"time"
)

// breaker trips after a run of consecutive failures and stays open for a
// fixed period; the first call after that period runs as a single probe.
type breaker struct {
	mu sync.Mutex

	fails         int
	failThreshold int
	openFor       time.Duration
	openUntil     time.Time
	probing       bool
}

func newBreaker(threshold int, openFor time.Duration) *breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if openFor <= 0 {
		openFor = 15 * time.Second
	}
	return &breaker{failThreshold: threshold, openFor: openFor}
}

// acquire reports whether a call may proceed now.
func (b *breaker) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fails < b.failThreshold {
		return true
	}
	// open: allow one probe once the hold period passed
	if time.Now().Before(b.openUntil) || b.probing {
		return false
	}
	b.probing = true
	return true
}

func (b *breaker) onSuccess() {
	b.mu.Lock()
	b.fails = 0
	b.probing = false
	b.mu.Unlock()
}

func (b *breaker) onFailure() {
	b.mu.Lock()
	b.fails++
	b.probing = false
	if b.fails >= b.failThreshold {
		b.openUntil = time.Now().Add(b.openFor)
	}
	b.mu.Unlock()
}
