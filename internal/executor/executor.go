package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"warden/internal/config"
	"warden/internal/decision"
)

const (
	RouteDeleteMessage = "delete_message"
	RouteMuteUser      = "mute_user"
	RouteWarnUser      = "warn_user"
)

// ErrCircuitOpen marks enforcements rejected by a tripped breaker.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CallResult is the platform client's verdict for one API call. A nil Err is
// success. Retryable failures (rate limits, 5xx, timeouts) may carry a
// server-supplied WaitHint that overrides the computed backoff when longer.
type CallResult struct {
	Err       error
	Retryable bool
	WaitHint  time.Duration
}

func OK() CallResult {
	return CallResult{}
}

func Retryable(err error, hint time.Duration) CallResult {
	return CallResult{Err: err, Retryable: true, WaitHint: hint}
}

func Fatal(err error) CallResult {
	return CallResult{Err: err}
}

// API is the slice of the chat platform the executor drives. Implementations
// classify their own errors; a timeout on the per-call context should come
// back retryable.
type API interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) CallResult
	MuteUser(ctx context.Context, guildID, userID string, duration time.Duration, reason string) CallResult
	WarnUser(ctx context.Context, guildID, channelID, userID, reason string) CallResult
}

// Outcome is what actually happened to one decision.
type Outcome struct {
	ID       string
	Action   string
	Success  bool
	Rejected bool
	Skipped  bool
	Attempts int
	Err      error
	Detail   string
}

type sleepFunc func(ctx context.Context, d time.Duration) error

type Executor struct {
	api     API
	logger  *zap.Logger
	limiter *rate.Limiter

	breakers map[string]*Breaker
	history  *history

	maxRetries     int
	requestTimeout time.Duration
	baseDelay      time.Duration
	maxDelay       time.Duration
	multiplier     float64
	jitter         float64

	sleep sleepFunc
}

func New(client API, cfg config.ExecutorConfig, logger *zap.Logger) *Executor {
	e := &Executor{
		api:            client,
		logger:         logger,
		limiter:        rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
		breakers:       make(map[string]*Breaker),
		history:        newHistory(historyLimit),
		maxRetries:     cfg.MaxRetries,
		requestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		baseDelay:      time.Duration(cfg.BackoffBaseMS) * time.Millisecond,
		maxDelay:       time.Duration(cfg.BackoffMaxMS) * time.Millisecond,
		multiplier:     cfg.BackoffMultiplier,
		jitter:         cfg.JitterFactor,
		sleep:          sleepWithContext,
	}
	cooldown := time.Duration(cfg.BreakerCooldownSeconds) * time.Second
	for _, route := range []string{RouteDeleteMessage, RouteMuteUser, RouteWarnUser} {
		e.breakers[route] = NewBreaker(route, cfg.BreakerThreshold, cooldown, logger)
	}
	return e
}

// OnBreakerChange installs the transition hook on every route breaker.
func (e *Executor) OnBreakerChange(fn func(name string, from, to State)) {
	for _, breaker := range e.breakers {
		breaker.OnStateChange(fn)
	}
}

func (e *Executor) BreakerStats() map[string]BreakerStats {
	stats := make(map[string]BreakerStats, len(e.breakers))
	for route, breaker := range e.breakers {
		stats[route] = breaker.Stats()
	}
	return stats
}

// Recent returns the newest execution records, most recent first.
func (e *Executor) Recent(n int) []Record {
	return e.history.recent(n)
}

// Execute carries out a warn or mute decision. Audit-only decisions are
// recorded as skipped without touching the platform. For mutes the offending
// message is deleted first when requested; a failed delete is noted but never
// blocks the mute itself.
func (e *Executor) Execute(ctx context.Context, dec decision.Decision) Outcome {
	out := Outcome{ID: uuid.NewString(), Action: dec.Action}

	if dec.Action != decision.ActionWarn && dec.Action != decision.ActionMute {
		out.Skipped = true
		return out
	}

	if dec.AuditOnly {
		out.Skipped = true
		out.Detail = "audit mode, action not executed"
		actionsTotal.WithLabelValues(dec.Action, "skipped").Inc()
		e.history.add(dec, out)
		return out
	}

	switch dec.Action {
	case decision.ActionWarn:
		out.Attempts, out.Err = e.do(ctx, RouteWarnUser, func(callCtx context.Context) CallResult {
			return e.api.WarnUser(callCtx, dec.GuildID, dec.ChannelID, dec.UserID, dec.Reason)
		})
	case decision.ActionMute:
		var notes []string
		if dec.DeleteMessage {
			attempts, err := e.do(ctx, RouteDeleteMessage, func(callCtx context.Context) CallResult {
				return e.api.DeleteMessage(callCtx, dec.ChannelID, dec.MessageID)
			})
			if err != nil {
				notes = append(notes, fmt.Sprintf("delete failed after %d attempts: %v", attempts, err))
				e.logger.Warn("message delete failed, continuing with mute",
					zap.String("guild_id", dec.GuildID),
					zap.String("message_id", dec.MessageID),
					zap.Int("attempts", attempts),
					zap.Error(err))
			} else {
				notes = append(notes, "message deleted")
			}
		}
		out.Attempts, out.Err = e.do(ctx, RouteMuteUser, func(callCtx context.Context) CallResult {
			return e.api.MuteUser(callCtx, dec.GuildID, dec.UserID, dec.MuteDuration, dec.Reason)
		})
		out.Detail = strings.Join(notes, "; ")
	}

	out.Success = out.Err == nil
	out.Rejected = errors.Is(out.Err, ErrCircuitOpen)
	actionsTotal.WithLabelValues(dec.Action, outcomeLabel(out)).Inc()

	if out.Err != nil {
		e.logger.Error("enforcement failed",
			zap.String("id", out.ID),
			zap.String("guild_id", dec.GuildID),
			zap.String("user_id", dec.UserID),
			zap.String("action", dec.Action),
			zap.Int("attempts", out.Attempts),
			zap.Bool("rejected", out.Rejected),
			zap.Error(out.Err))
	} else {
		e.logger.Info("enforcement executed",
			zap.String("id", out.ID),
			zap.String("guild_id", dec.GuildID),
			zap.String("user_id", dec.UserID),
			zap.String("action", dec.Action),
			zap.Int("attempts", out.Attempts),
			zap.Duration("mute_duration", dec.MuteDuration))
	}

	e.history.add(dec, out)
	return out
}

// do runs one API call under the global limiter, the route breaker, the
// per-call timeout, and exponential backoff. The server's wait hint wins
// whenever it is longer than the computed delay.
func (e *Executor) do(ctx context.Context, route string, call func(ctx context.Context) CallResult) (int, error) {
	breaker := e.breakers[route]
	boff := e.newBackoff()

	attempts := 0
	var lastErr error
	var hint time.Duration
	for {
		if attempts > 0 {
			if attempts > e.maxRetries {
				return attempts, fmt.Errorf("%s: retries exhausted: %w", route, lastErr)
			}
			wait := boff.NextBackOff()
			if wait == backoff.Stop {
				return attempts, lastErr
			}
			if hint > wait {
				wait = hint
			}
			retryWait.WithLabelValues(route).Observe(wait.Seconds())
			if err := e.sleep(ctx, wait); err != nil {
				return attempts, err
			}
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return attempts, err
		}
		if !breaker.Allow() {
			return attempts, fmt.Errorf("%s: %w", route, ErrCircuitOpen)
		}

		attempts++
		callCtx, cancel := context.WithTimeout(ctx, e.requestTimeout)
		result := call(callCtx)
		cancel()

		if result.Err == nil {
			breaker.RecordSuccess()
			return attempts, nil
		}

		breaker.RecordFailure()
		lastErr = result.Err
		hint = result.WaitHint
		if !result.Retryable {
			return attempts, result.Err
		}
	}
}

func (e *Executor) newBackoff() backoff.BackOff {
	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = e.baseDelay
	boff.MaxInterval = e.maxDelay
	boff.Multiplier = e.multiplier
	boff.RandomizationFactor = e.jitter
	boff.MaxElapsedTime = 0
	boff.Reset()
	return boff
}

func outcomeLabel(out Outcome) string {
	switch {
	case out.Success:
		return "success"
	case out.Rejected:
		return "rejected"
	default:
		return "failure"
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
