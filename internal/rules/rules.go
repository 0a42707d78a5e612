package rules

import (
	"time"

	"go.uber.org/zap"

	"warden/internal/config"
	"warden/internal/window"
)

const (
	RuleRate       = "rate"
	RuleDuplicate  = "duplicate_content"
	RuleLink       = "suspicious_link"
	RuleNewAccount = "new_account_risk"
)

// Event is one inbound message as delivered by the ingestion layer. Content
// carries attachment/sticker markers appended by the ingestion side.
type Event struct {
	GuildID        string
	ChannelID      string
	UserID         string
	MessageID      string
	Content        string
	AccountCreated time.Time
	JoinedAt       time.Time
	ReceivedAt     time.Time
}

// Signal is one rule's weighted confidence for the current message.
type Signal struct {
	Rule       string
	Confidence float64
	Evidence   string
}

// Evaluator reads the author's window snapshot and the resolved guild policy
// and optionally emits a signal. Evaluators are pure apart from read-through
// caches and must never panic the pipeline.
type Evaluator interface {
	Name() string
	Evaluate(ev Event, snap window.Snapshot, pol config.GuildPolicy) (Signal, bool)
}

// DefaultSet returns the active evaluators in evaluation order.
func DefaultSet() []Evaluator {
	return []Evaluator{NewRate(), NewDuplicate(), NewLink()}
}

// EvaluateAll drives the fixed evaluator loop. A panicking evaluator is
// absorbed to "no signal" and counted so one malformed message cannot take
// down its partition.
func EvaluateAll(evaluators []Evaluator, ev Event, snap window.Snapshot, pol config.GuildPolicy, logger *zap.Logger) []Signal {
	signals := make([]Signal, 0, len(evaluators))
	for _, evaluator := range evaluators {
		if sig, ok := runEvaluator(evaluator, ev, snap, pol, logger); ok {
			signalsFired.WithLabelValues(sig.Rule).Inc()
			signals = append(signals, sig)
		}
	}
	return signals
}

func runEvaluator(evaluator Evaluator, ev Event, snap window.Snapshot, pol config.GuildPolicy, logger *zap.Logger) (sig Signal, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			evaluatorErrors.WithLabelValues(evaluator.Name()).Inc()
			logger.Error("evaluator panic",
				zap.String("rule", evaluator.Name()),
				zap.String("guild_id", ev.GuildID),
				zap.String("user_id", ev.UserID),
				zap.Any("panic", r))
			sig, ok = Signal{}, false
		}
	}()
	return evaluator.Evaluate(ev, snap, pol)
}
