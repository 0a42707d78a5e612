package executor

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	breaker := NewBreaker("test_route", threshold, cooldown, zap.NewNop())
	breaker.WithClock(clock)
	return breaker, clock
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	breaker, _ := newTestBreaker(3, time.Minute)

	breaker.RecordFailure()
	breaker.RecordFailure()
	if breaker.State() != StateClosed {
		t.Fatalf("breaker opened before the threshold")
	}
	if !breaker.Allow() {
		t.Fatalf("closed breaker must allow requests")
	}

	breaker.RecordFailure()
	if breaker.State() != StateOpen {
		t.Fatalf("expected open after 3 consecutive failures, got %s", breaker.State())
	}
	if breaker.Allow() {
		t.Fatalf("open breaker must reject requests")
	}
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	breaker, _ := newTestBreaker(3, time.Minute)

	breaker.RecordFailure()
	breaker.RecordFailure()
	breaker.RecordSuccess()
	breaker.RecordFailure()
	breaker.RecordFailure()
	if breaker.State() != StateClosed {
		t.Fatalf("non-consecutive failures must not trip the breaker")
	}
}

func TestBreakerCooldownMeasuredFromLastFailure(t *testing.T) {
	breaker, clock := newTestBreaker(1, time.Minute)

	breaker.RecordFailure()
	if breaker.Allow() {
		t.Fatalf("expected rejection right after opening")
	}

	clock.now = clock.now.Add(59 * time.Second)
	if breaker.Allow() {
		t.Fatalf("expected rejection before the cooldown elapses")
	}

	clock.now = clock.now.Add(time.Second)
	if !breaker.Allow() {
		t.Fatalf("expected a probe once the cooldown elapsed")
	}
	if breaker.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", breaker.State())
	}
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	breaker, clock := newTestBreaker(1, time.Minute)

	breaker.RecordFailure()
	clock.now = clock.now.Add(time.Minute)

	if !breaker.Allow() {
		t.Fatalf("expected the probe to pass")
	}
	if breaker.Allow() {
		t.Fatalf("second request during the probe must be rejected")
	}
}

func TestBreakerHalfOpenSuccessCloses(t *testing.T) {
	breaker, clock := newTestBreaker(1, time.Minute)

	breaker.RecordFailure()
	clock.now = clock.now.Add(time.Minute)
	if !breaker.Allow() {
		t.Fatalf("expected the probe to pass")
	}

	breaker.RecordSuccess()
	if breaker.State() != StateClosed {
		t.Fatalf("one successful probe must close the breaker, got %s", breaker.State())
	}
	if !breaker.Allow() {
		t.Fatalf("closed breaker must allow requests")
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	breaker, clock := newTestBreaker(1, time.Minute)

	breaker.RecordFailure()
	clock.now = clock.now.Add(time.Minute)
	if !breaker.Allow() {
		t.Fatalf("expected the probe to pass")
	}

	breaker.RecordFailure()
	if breaker.State() != StateOpen {
		t.Fatalf("failed probe must reopen, got %s", breaker.State())
	}
	if breaker.Allow() {
		t.Fatalf("expected rejection while the new cooldown runs")
	}

	clock.now = clock.now.Add(time.Minute)
	if !breaker.Allow() {
		t.Fatalf("expected another probe after the fresh cooldown")
	}
}

func TestBreakerResetForcesClosed(t *testing.T) {
	breaker, _ := newTestBreaker(1, time.Minute)

	breaker.RecordFailure()
	breaker.Reset()
	if breaker.State() != StateClosed {
		t.Fatalf("reset must close the breaker")
	}
	if !breaker.Allow() {
		t.Fatalf("reset breaker must allow requests")
	}
}

func TestBreakerStats(t *testing.T) {
	breaker, _ := newTestBreaker(1, time.Minute)

	breaker.Allow()
	breaker.RecordSuccess()
	breaker.RecordFailure()
	breaker.Allow()

	stats := breaker.Stats()
	if stats.Total != 2 {
		t.Fatalf("expected 2 checked requests, got %d", stats.Total)
	}
	if stats.Successes != 1 || stats.Failures != 1 {
		t.Fatalf("unexpected counters: %+v", stats)
	}
	if stats.Rejected != 1 {
		t.Fatalf("expected 1 rejection, got %d", stats.Rejected)
	}
	if stats.State != "open" {
		t.Fatalf("expected open state in stats, got %s", stats.State)
	}
}

func TestBreakerNotifiesOnTransition(t *testing.T) {
	breaker, _ := newTestBreaker(1, time.Minute)

	transitions := make(chan State, 4)
	breaker.OnStateChange(func(_ string, _, to State) {
		transitions <- to
	})

	breaker.RecordFailure()
	if to := <-transitions; to != StateOpen {
		t.Fatalf("expected open transition, got %s", to)
	}
}
