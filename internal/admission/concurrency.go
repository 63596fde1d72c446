package admission

import "sync"

const DefaultMaxConcurrent = 3

// Admitter bounds the number of rendering jobs in flight. TryAdmit never
// blocks or queues; callers get Busy and must fail fast with a retry hint.
type Admitter struct {
	sem chan struct{}
}

func NewAdmitter(max int) *Admitter {
	if max <= 0 {
		max = DefaultMaxConcurrent
	}
	return &Admitter{sem: make(chan struct{}, max)}
}

// TryAdmit attempts to take a slot. On success the returned release
// function gives the slot back; it is idempotent, so deferred release on
// every exit path cannot double-free the budget.
func (a *Admitter) TryAdmit() (release func(), ok bool) {
	select {
	case a.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-a.sem }) }, true
	default:
		return nil, false
	}
}

// InFlight reports the number of slots currently held.
func (a *Admitter) InFlight() int { return len(a.sem) }
