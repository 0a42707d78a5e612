package decision

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"warden/internal/config"
	"warden/internal/rules"
	"warden/internal/storage"
)

const (
	ActionNone = "none"
	ActionWarn = "warn"
	ActionMute = "mute"
)

// Decision is the engine's verdict for one message. Signals keeps the raw
// evidence for the audit trail; RulesFired is the flat name list the audit
// record and log lines carry, with the account multiplier appended when it
// changed the outcome's inputs.
type Decision struct {
	GuildID   string
	ChannelID string
	UserID    string
	MessageID string

	Action      string
	Combined    float64
	Multiplier  float64
	RulesFired  []string
	Signals     []rules.Signal
	Reason      string
	Sensitivity string
	AuditOnly   bool

	MuteDuration  time.Duration
	DeleteMessage bool
	OffenseCount  int
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Engine struct {
	store  *storage.Store
	clock  Clock
	logger *zap.Logger
}

func NewEngine(store *storage.Store, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		clock:  realClock{},
		logger: logger,
	}
}

func (e *Engine) WithClock(clock Clock) {
	e.clock = clock
}

// Decide folds the fired signals into a weighted score, applies the account
// multiplier, and maps the result onto the sensitivity bands. Mutes bump the
// persisted offense count; if that bump fails the decision still stands at
// the base duration rather than letting an enforcement slip.
func (e *Engine) Decide(ctx context.Context, ev rules.Event, signals []rules.Signal, pol config.GuildPolicy) Decision {
	dec := Decision{
		GuildID:     ev.GuildID,
		ChannelID:   ev.ChannelID,
		UserID:      ev.UserID,
		MessageID:   ev.MessageID,
		Action:      ActionNone,
		Multiplier:  1.0,
		Sensitivity: pol.Sensitivity,
		AuditOnly:   pol.AuditOnly,
		Signals:     signals,
	}

	if len(signals) == 0 {
		decisionsTotal.WithLabelValues(ActionNone).Inc()
		return dec
	}

	combined := 0.0
	reasons := make([]string, 0, len(signals)+1)
	for _, sig := range signals {
		combined += e.weightFor(sig.Rule, pol) * sig.Confidence
		dec.RulesFired = append(dec.RulesFired, sig.Rule)
		reasons = append(reasons, sig.Rule+": "+sig.Evidence)
	}
	if combined > 1.0 {
		combined = 1.0
	}

	multiplier, why := rules.AccountMultiplier(ev, pol)
	if multiplier > 1.0 {
		combined *= multiplier
		if combined > 1.0 {
			combined = 1.0
		}
		dec.Multiplier = multiplier
		dec.RulesFired = append(dec.RulesFired, rules.RuleNewAccount)
		reasons = append(reasons, rules.RuleNewAccount+": "+why)
	}

	dec.Combined = combined
	dec.Reason = strings.Join(reasons, "; ")

	switch {
	case combined >= pol.MuteThreshold:
		dec.Action = ActionMute
	case combined >= pol.WarnThreshold:
		dec.Action = ActionWarn
	}

	if dec.Action == ActionMute {
		dec.DeleteMessage = pol.DeleteOnMute
		dec.OffenseCount = e.escalate(ctx, ev, pol)
		dec.MuteDuration = muteDuration(pol.BaseMute, pol.MaxMute, dec.OffenseCount)
	}

	decisionsTotal.WithLabelValues(dec.Action).Inc()

	if dec.Action != ActionNone {
		e.logger.Info("decision",
			zap.String("guild_id", dec.GuildID),
			zap.String("user_id", dec.UserID),
			zap.String("action", dec.Action),
			zap.Float64("combined", dec.Combined),
			zap.Strings("rules", dec.RulesFired),
			zap.String("sensitivity", dec.Sensitivity),
			zap.Duration("mute_duration", dec.MuteDuration),
			zap.Bool("audit_only", dec.AuditOnly))
	}

	return dec
}

func (e *Engine) escalate(ctx context.Context, ev rules.Event, pol config.GuildPolicy) int {
	count, err := e.store.EscalateOffense(ctx, ev.GuildID, ev.UserID, e.clock.Now(), pol.EscalationWindow)
	if err != nil {
		escalationFailures.Inc()
		e.logger.Error("offense escalation failed, using base duration",
			zap.String("guild_id", ev.GuildID),
			zap.String("user_id", ev.UserID),
			zap.Error(err))
		return 1
	}
	return count
}

func (e *Engine) weightFor(rule string, pol config.GuildPolicy) float64 {
	switch rule {
	case rules.RuleRate:
		return pol.RateWeight
	case rules.RuleDuplicate:
		return pol.DuplicateWeight
	case rules.RuleLink:
		return pol.LinkWeight
	default:
		return 1.0
	}
}

// muteDuration doubles the base per prior offense inside the escalation
// window and clips at the configured maximum.
func muteDuration(base, max time.Duration, count int) time.Duration {
	if base <= 0 {
		base = 6 * time.Hour
	}
	duration := base
	for i := 1; i < count; i++ {
		duration *= 2
		if max > 0 && duration >= max {
			return max
		}
	}
	if max > 0 && duration > max {
		return max
	}
	return duration
}
