package executor

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type BreakerStats struct {
	State        string
	Total        uint64
	Successes    uint64
	Failures     uint64
	Rejected     uint64
	StateChanges uint64
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Breaker guards one API route. Consecutive failures trip it open; after the
// cooldown (measured from the last failure) a single probe is let through,
// and that probe alone decides whether the route closes again or stays open.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	logger    *zap.Logger
	clock     Clock
	notify    func(name string, from, to State)

	mu           sync.Mutex
	state        State
	failures     int
	probing      bool
	lastFailure  time.Time
	total        uint64
	successes    uint64
	failed       uint64
	rejected     uint64
	stateChanges uint64
}

func NewBreaker(name string, threshold int, cooldown time.Duration, logger *zap.Logger) *Breaker {
	breakerState.WithLabelValues(name).Set(float64(StateClosed))
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger,
		clock:     realClock{},
	}
}

func (b *Breaker) WithClock(clock Clock) {
	b.clock = clock
}

// OnStateChange installs a hook invoked on every transition. It runs on its
// own goroutine so slow consumers never stall enforcement.
func (b *Breaker) OnStateChange(fn func(name string, from, to State)) {
	b.notify = fn
}

// Allow reports whether a request may go out right now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if !b.lastFailure.IsZero() && b.clock.Now().Sub(b.lastFailure) >= b.cooldown {
			b.transition(StateHalfOpen)
			b.probing = true
			return true
		}
		b.rejected++
		breakerRejections.WithLabelValues(b.name).Inc()
		return false
	default:
		// Half-open admits exactly one probe at a time.
		if b.probing {
			b.rejected++
			breakerRejections.WithLabelValues(b.name).Inc()
			return false
		}
		b.probing = true
		return true
	}
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes++
	b.failures = 0
	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failed++
	b.lastFailure = b.clock.Now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:        b.state.String(),
		Total:        b.total,
		Successes:    b.successes,
		Failures:     b.failed,
		Rejected:     b.rejected,
		StateChanges: b.stateChanges,
	}
}

// Reset forces the breaker closed, for moderator intervention.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
	b.failures = 0
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.stateChanges++
	b.probing = false
	if to == StateClosed {
		b.failures = 0
	}
	breakerState.WithLabelValues(b.name).Set(float64(to))

	if to == StateOpen {
		b.logger.Warn("circuit breaker opened",
			zap.String("route", b.name),
			zap.Duration("cooldown", b.cooldown))
	} else {
		b.logger.Info("circuit breaker state change",
			zap.String("route", b.name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}
	if b.notify != nil {
		go b.notify(b.name, from, to)
	}
}
