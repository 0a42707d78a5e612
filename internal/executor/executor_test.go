package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"warden/internal/config"
	"warden/internal/decision"
)

type fakeAPI struct {
	mu            sync.Mutex
	deleteResults []CallResult
	muteResults   []CallResult
	warnResults   []CallResult

	order        []string
	muteDuration time.Duration
}

func (f *fakeAPI) DeleteMessage(_ context.Context, _, _ string) CallResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "delete")
	return pop(&f.deleteResults)
}

func (f *fakeAPI) MuteUser(_ context.Context, _, _ string, duration time.Duration, _ string) CallResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "mute")
	f.muteDuration = duration
	return pop(&f.muteResults)
}

func (f *fakeAPI) WarnUser(_ context.Context, _, _, _, _ string) CallResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "warn")
	return pop(&f.warnResults)
}

func (f *fakeAPI) calls(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.order {
		if call == kind {
			count++
		}
	}
	return count
}

func pop(queue *[]CallResult) CallResult {
	if len(*queue) == 0 {
		return OK()
	}
	result := (*queue)[0]
	*queue = (*queue)[1:]
	return result
}

func testExecutorConfig() config.ExecutorConfig {
	return config.ExecutorConfig{
		MaxRetries:             3,
		BackoffBaseMS:          1,
		BackoffMaxMS:           4,
		BackoffMultiplier:      2.0,
		JitterFactor:           0,
		BreakerThreshold:       5,
		BreakerCooldownSeconds: 60,
		RequestTimeoutSeconds:  1,
		GlobalRate:             1000,
		GlobalBurst:            100,
	}
}

func newTestExecutor(api *fakeAPI) (*Executor, *[]time.Duration) {
	e := New(api, testExecutorConfig(), zap.NewNop())
	waits := &[]time.Duration{}
	e.sleep = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return e, waits
}

func warnDecision() decision.Decision {
	return decision.Decision{
		GuildID:   "g1",
		ChannelID: "c1",
		UserID:    "u1",
		MessageID: "m1",
		Action:    decision.ActionWarn,
		Reason:    "rate: 6 messages in 10s",
	}
}

func muteDecision() decision.Decision {
	dec := warnDecision()
	dec.Action = decision.ActionMute
	dec.MuteDuration = 6 * time.Hour
	dec.DeleteMessage = true
	return dec
}

func TestExecuteWarn(t *testing.T) {
	api := &fakeAPI{}
	e, _ := newTestExecutor(api)

	out := e.Execute(context.Background(), warnDecision())
	if !out.Success || out.Attempts != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if api.calls("warn") != 1 {
		t.Fatalf("expected 1 warn call, got %d", api.calls("warn"))
	}
	if out.ID == "" {
		t.Fatalf("outcome must carry an id")
	}
}

func TestExecuteMuteDeletesMessageFirst(t *testing.T) {
	api := &fakeAPI{}
	e, _ := newTestExecutor(api)

	out := e.Execute(context.Background(), muteDecision())
	if !out.Success {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(api.order) != 2 || api.order[0] != "delete" || api.order[1] != "mute" {
		t.Fatalf("unexpected call order: %v", api.order)
	}
	if api.muteDuration != 6*time.Hour {
		t.Fatalf("mute duration not passed through: %s", api.muteDuration)
	}
	if !strings.Contains(out.Detail, "message deleted") {
		t.Fatalf("detail missing delete note: %q", out.Detail)
	}
}

func TestExecuteRetriesWithExponentialBackoff(t *testing.T) {
	api := &fakeAPI{warnResults: []CallResult{
		Retryable(errors.New("http 500"), 0),
		Retryable(errors.New("http 500"), 0),
		OK(),
	}}
	e, waits := newTestExecutor(api)

	out := e.Execute(context.Background(), warnDecision())
	if !out.Success || out.Attempts != 3 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond}
	if len(*waits) != len(want) || (*waits)[0] != want[0] || (*waits)[1] != want[1] {
		t.Fatalf("unexpected backoff waits: %v", *waits)
	}
}

func TestExecuteServerWaitHintOverridesShorterBackoff(t *testing.T) {
	api := &fakeAPI{warnResults: []CallResult{
		Retryable(errors.New("rate limited"), 500*time.Millisecond),
		OK(),
	}}
	e, waits := newTestExecutor(api)

	out := e.Execute(context.Background(), warnDecision())
	if !out.Success {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(*waits) != 1 || (*waits)[0] != 500*time.Millisecond {
		t.Fatalf("wait hint not honored: %v", *waits)
	}
}

func TestExecuteFatalFailureDoesNotRetry(t *testing.T) {
	api := &fakeAPI{warnResults: []CallResult{Fatal(errors.New("missing permissions"))}}
	e, waits := newTestExecutor(api)

	out := e.Execute(context.Background(), warnDecision())
	if out.Success || out.Attempts != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(*waits) != 0 {
		t.Fatalf("fatal failure must not back off: %v", *waits)
	}
}

func TestExecuteExhaustsRetries(t *testing.T) {
	err := errors.New("http 502")
	api := &fakeAPI{warnResults: []CallResult{
		Retryable(err, 0), Retryable(err, 0), Retryable(err, 0), Retryable(err, 0), Retryable(err, 0),
	}}
	e, _ := newTestExecutor(api)

	out := e.Execute(context.Background(), warnDecision())
	if out.Success {
		t.Fatalf("expected failure: %+v", out)
	}
	if out.Attempts != 4 {
		t.Fatalf("expected initial try plus 3 retries, got %d", out.Attempts)
	}
	if !strings.Contains(out.Err.Error(), "retries exhausted") {
		t.Fatalf("unexpected error: %v", out.Err)
	}
}

func TestExecuteRejectedByOpenBreaker(t *testing.T) {
	api := &fakeAPI{}
	e, _ := newTestExecutor(api)

	for i := 0; i < 5; i++ {
		e.breakers[RouteMuteUser].RecordFailure()
	}

	dec := muteDecision()
	dec.DeleteMessage = false
	out := e.Execute(context.Background(), dec)
	if !out.Rejected {
		t.Fatalf("expected rejection by the open breaker: %+v", out)
	}
	if api.calls("mute") != 0 {
		t.Fatalf("rejected enforcement must not reach the API")
	}
}

func TestExecuteAuditOnlySkips(t *testing.T) {
	api := &fakeAPI{}
	e, _ := newTestExecutor(api)

	dec := muteDecision()
	dec.AuditOnly = true
	out := e.Execute(context.Background(), dec)
	if !out.Skipped {
		t.Fatalf("expected skip in audit mode: %+v", out)
	}
	if len(api.order) != 0 {
		t.Fatalf("audit mode must not call the API: %v", api.order)
	}
}

func TestExecuteDeleteFailureStillMutes(t *testing.T) {
	api := &fakeAPI{deleteResults: []CallResult{Fatal(errors.New("unknown message"))}}
	e, _ := newTestExecutor(api)

	out := e.Execute(context.Background(), muteDecision())
	if !out.Success {
		t.Fatalf("mute must proceed past a failed delete: %+v", out)
	}
	if api.calls("mute") != 1 {
		t.Fatalf("expected the mute call, got %d", api.calls("mute"))
	}
	if !strings.Contains(out.Detail, "delete failed") {
		t.Fatalf("detail missing delete failure: %q", out.Detail)
	}
}

func TestRecentHistoryNewestFirst(t *testing.T) {
	api := &fakeAPI{}
	e, _ := newTestExecutor(api)

	var ids []string
	for i := 0; i < 3; i++ {
		out := e.Execute(context.Background(), warnDecision())
		ids = append(ids, out.ID)
	}

	recent := e.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	if recent[0].ID != ids[2] || recent[1].ID != ids[1] {
		t.Fatalf("history not newest first: %+v", recent)
	}
}
