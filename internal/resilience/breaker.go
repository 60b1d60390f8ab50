// Package resilience shields the conversation loop from a flapping reply
// provider. [Breaker] is a three-state circuit breaker (closed → open →
// half-open); [Generator] wraps a [reply.Generator] with one so that repeated
// provider failures fail fast instead of stalling every turn on a doomed
// request.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// cool-off period has not yet elapsed.
var ErrOpen = errors.New("resilience: breaker open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls with [ErrOpen] until the cool-off elapses.
	BreakerOpen

	// BreakerHalfOpen lets a single probe call through. Success closes the
	// breaker, failure re-opens it.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultMaxFailures = 3
	defaultCoolOff     = 30 * time.Second
)

// BreakerOption configures a [Breaker].
type BreakerOption func(*Breaker)

// WithMaxFailures sets how many consecutive failures trip the breaker.
// Default: 3.
func WithMaxFailures(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.maxFailures = n
		}
	}
}

// WithCoolOff sets how long the breaker stays open before a probe call is
// allowed. Default: 30s.
func WithCoolOff(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.coolOff = d
		}
	}
}

// Breaker is a single-probe circuit breaker. After maxFailures consecutive
// failures it rejects calls for the cool-off period, then admits one probe:
// a successful probe closes it, a failed probe restarts the cool-off.
type Breaker struct {
	name        string
	maxFailures int
	coolOff     time.Duration

	// now is stubbed in tests.
	now func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed [Breaker]. The name appears in log messages.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:        name,
		maxFailures: defaultMaxFailures,
		coolOff:     defaultCoolOff,
		now:         time.Now,
		state:       BreakerClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Do runs fn if the breaker admits the call, forwarding fn's error. While
// open it returns [ErrOpen] without calling fn.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// admit decides whether a call may proceed, transitioning open → half-open
// when the cool-off has elapsed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.coolOff {
			return ErrOpen
		}
		b.state = BreakerHalfOpen
		b.probing = false
		slog.Info("breaker half-open, admitting probe", "name", b.name)
		fallthrough
	case BreakerHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state == BreakerHalfOpen {
			slog.Info("breaker closed after successful probe", "name", b.name)
		}
		b.state = BreakerClosed
		b.failures = 0
		b.probing = false
		return
	}

	switch b.state {
	case BreakerHalfOpen:
		b.trip("probe failed")
	case BreakerClosed:
		b.failures++
		if b.failures >= b.maxFailures {
			b.trip("consecutive failures")
		}
	}
}

// trip opens the breaker. Must be called with b.mu held.
func (b *Breaker) trip(why string) {
	b.state = BreakerOpen
	b.openedAt = b.now()
	b.probing = false
	slog.Warn("breaker opened",
		"name", b.name,
		"reason", why,
		"cool_off", b.coolOff,
	)
}

// State reports the breaker's mode. An open breaker whose cool-off has
// elapsed reports half-open; the transition itself happens on the next Do.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.coolOff {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to closed, clearing failure counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probing = false
}
