package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"warden/internal/alert"
	"warden/internal/audit"
	"warden/internal/config"
	"warden/internal/decision"
	"warden/internal/executor"
	"warden/internal/fingerprint"
	"warden/internal/rules"
	"warden/internal/storage"
	"warden/internal/window"
)

// retractionTTL bounds how long a delete notice is kept for events that never
// arrive (already processed, or dropped at intake).
const retractionTTL = 2 * time.Minute

// Pipeline fans message events out to a fixed set of workers. Events for the
// same (guild, user) always land on the same worker, which preserves
// per-author ordering without any global lock. Full queues drop rather than
// block the gateway.
type Pipeline struct {
	cfg        config.Config
	store      *storage.Store
	windows    *window.Store
	engine     *decision.Engine
	exec       *executor.Executor
	auditor    *audit.Logger
	evaluators []rules.Evaluator
	logger     *zap.Logger
	alerts     *alert.Notifier

	queues    []chan rules.Event
	retracted *xsync.MapOf[string, time.Time]

	wg       sync.WaitGroup
	stopped  atomic.Bool
	stopOnce sync.Once
	dropped  atomic.Uint64
}

func New(cfg config.Config, store *storage.Store, windows *window.Store, engine *decision.Engine, exec *executor.Executor, auditor *audit.Logger, logger *zap.Logger) *Pipeline {
	queues := make([]chan rules.Event, cfg.Pipeline.Workers)
	for i := range queues {
		queues[i] = make(chan rules.Event, cfg.Pipeline.QueueSize)
	}
	return &Pipeline{
		cfg:        cfg,
		store:      store,
		windows:    windows,
		engine:     engine,
		exec:       exec,
		auditor:    auditor,
		evaluators: rules.DefaultSet(),
		logger:     logger,
		queues:     queues,
		retracted:  xsync.NewMapOf[string, time.Time](),
	}
}

// SetAlerter installs the ops webhook notifier for partition failures.
func (p *Pipeline) SetAlerter(n *alert.Notifier) {
	p.alerts = n
}

func (p *Pipeline) Start(ctx context.Context) {
	for i, queue := range p.queues {
		p.wg.Add(1)
		go p.worker(ctx, i, queue)
	}
	p.logger.Info("pipeline started",
		zap.Int("workers", len(p.queues)),
		zap.Int("queue_size", p.cfg.Pipeline.QueueSize))
}

// Stop refuses further intake, drains the queues, and waits for the workers.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		for _, queue := range p.queues {
			close(queue)
		}
	})
	p.wg.Wait()
}

// Submit enqueues one event. It never blocks; when the author's worker queue
// is full the event is dropped and counted.
func (p *Pipeline) Submit(ev rules.Event) {
	if p.stopped.Load() {
		return
	}
	idx := p.route(ev.GuildID, ev.UserID)
	select {
	case p.queues[idx] <- ev:
		intakeTotal.Inc()
	default:
		p.dropped.Add(1)
		intakeDropped.WithLabelValues(workerLabel(idx)).Inc()
		p.logger.Debug("intake queue full, event dropped",
			zap.Int("worker", idx),
			zap.String("guild_id", ev.GuildID),
			zap.String("user_id", ev.UserID))
	}
}

// Retract marks a message as deleted upstream so a still-queued event for it
// is skipped instead of evaluated. Best effort: an evaluation already under
// way completes normally.
func (p *Pipeline) Retract(channelID, messageID string) {
	p.retracted.Store(channelID+":"+messageID, time.Now())
}

// Dropped reports how many events were shed at intake.
func (p *Pipeline) Dropped() uint64 {
	return p.dropped.Load()
}

// SweepRetractions drops stale delete notices; run it periodically.
func (p *Pipeline) SweepRetractions(now time.Time) {
	p.retracted.Range(func(key string, at time.Time) bool {
		if now.Sub(at) > retractionTTL {
			p.retracted.Delete(key)
		}
		return true
	})
}

func (p *Pipeline) route(guildID, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(guildID + ":" + userID))
	return int(h.Sum32() % uint32(len(p.queues)))
}

func (p *Pipeline) worker(ctx context.Context, idx int, queue <-chan rules.Event) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-queue:
			if !ok {
				return
			}
			p.process(ctx, idx, ev)
		}
	}
}

// process runs the full evaluate-decide-execute-audit sequence for one
// event. A panic is contained to this one message so a malformed event can
// never take the worker down.
func (p *Pipeline) process(ctx context.Context, idx int, ev rules.Event) {
	defer func() {
		if r := recover(); r != nil {
			partitionPanics.Inc()
			p.logger.Error("partition panic",
				zap.Int("worker", idx),
				zap.String("guild_id", ev.GuildID),
				zap.String("user_id", ev.UserID),
				zap.String("message_id", ev.MessageID),
				zap.Any("panic", r))
			go p.alerts.Send(context.Background(),
				fmt.Sprintf("partition failure guild=%s user=%s: %v", ev.GuildID, ev.UserID, r))
		}
	}()

	if _, ok := p.retracted.LoadAndDelete(ev.ChannelID + ":" + ev.MessageID); ok {
		retractionSkips.Inc()
		return
	}

	start := time.Now()
	pol := p.policyFor(ctx, ev.GuildID)
	snap := p.windows.Record(ev.GuildID, ev.UserID, ev.ChannelID, ev.MessageID, fingerprint.New(ev.Content), ev.ReceivedAt)
	signals := rules.EvaluateAll(p.evaluators, ev, snap, pol, p.logger)
	dec := p.engine.Decide(ctx, ev, signals, pol)

	if dec.Action != decision.ActionNone {
		out := p.exec.Execute(ctx, dec)
		if err := p.auditor.RecordDecision(ctx, dec, outcomeOf(out), out.Attempts, out.Detail); err != nil {
			p.logger.Error("audit record failed",
				zap.String("guild_id", dec.GuildID),
				zap.String("user_id", dec.UserID),
				zap.String("action", dec.Action),
				zap.Error(err))
		}
	}

	processingSeconds.Observe(time.Since(start).Seconds())
}

// policyFor resolves the effective guild policy at decision time: process
// defaults, the persisted guild settings row, and the guild's domain lists.
// Any storage trouble degrades to the configured defaults so evaluation is
// never blocked on configuration.
func (p *Pipeline) policyFor(ctx context.Context, guildID string) config.GuildPolicy {
	settings, err := p.store.GetGuildSettings(ctx, guildID, p.defaultSettings())
	if err != nil {
		configFallbacks.Inc()
		p.logger.Warn("guild settings unavailable, using defaults",
			zap.String("guild_id", guildID),
			zap.Error(err))
		pol := p.cfg.Policy(p.cfg.Sensitivity)
		pol.GuildID = guildID
		return pol
	}

	if settings.Sensitivity != "" && !config.ValidSensitivity(settings.Sensitivity) {
		configFallbacks.Inc()
		p.logger.Warn("unknown sensitivity configured, falling back to medium",
			zap.String("guild_id", guildID),
			zap.String("sensitivity", settings.Sensitivity))
	}

	pol := p.cfg.Policy(settings.Sensitivity)
	pol.GuildID = guildID
	pol.AuditOnly = pol.AuditOnly || settings.Mode == "audit"
	if settings.BaseMuteMinutes > 0 {
		pol.BaseMute = time.Duration(settings.BaseMuteMinutes) * time.Minute
	}
	pol.Rate.Enabled = pol.Rate.Enabled && settings.RateEnabled
	pol.Duplicate.Enabled = pol.Duplicate.Enabled && settings.DuplicateEnabled
	pol.Link.Enabled = pol.Link.Enabled && settings.LinkEnabled
	pol.Account.Enabled = pol.Account.Enabled && settings.AccountEnabled

	if allowed, err := p.store.ListDomainAllow(ctx, guildID); err == nil {
		for _, domain := range allowed {
			pol.Link.SafeDomains[domain] = struct{}{}
		}
	} else {
		p.logger.Warn("domain allowlist unavailable", zap.String("guild_id", guildID), zap.Error(err))
	}
	if blocked, err := p.store.ListDomainBlock(ctx, guildID); err == nil {
		for _, domain := range blocked {
			pol.Link.DenyDomains[domain] = struct{}{}
		}
	} else {
		p.logger.Warn("domain blocklist unavailable", zap.String("guild_id", guildID), zap.Error(err))
	}

	return pol
}

// Policy exposes the effective policy for the status surface.
func (p *Pipeline) Policy(ctx context.Context, guildID string) config.GuildPolicy {
	return p.policyFor(ctx, guildID)
}

func (p *Pipeline) defaultSettings() storage.GuildSettings {
	return storage.GuildSettings{
		SecurityLogChannel: p.cfg.SecurityLogChannel,
		Sensitivity:        p.cfg.Sensitivity,
		Mode:               p.cfg.Mode,
		BaseMuteMinutes:    p.cfg.Decision.BaseMuteMinutes,
		RetentionDays:      p.cfg.RetentionDays,
		RateEnabled:        p.cfg.Rules.Rate.Enabled,
		DuplicateEnabled:   p.cfg.Rules.Duplicate.Enabled,
		LinkEnabled:        p.cfg.Rules.Link.Enabled,
		AccountEnabled:     p.cfg.Rules.Account.Enabled,
	}
}

func outcomeOf(out executor.Outcome) string {
	switch {
	case out.Skipped:
		return audit.OutcomeSkipped
	case out.Success:
		return audit.OutcomeSuccess
	default:
		return audit.OutcomeFailure
	}
}

func workerLabel(idx int) string {
	return strconv.Itoa(idx)
}
