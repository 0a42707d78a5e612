package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"warden/internal/decision"
	"warden/internal/storage"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"

	ActionConfigChange = "config_change"
)

// Logger persists enforcement outcomes and moderator configuration changes.
// Writes are synchronous; a nil error means the entry is durably stored.
type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	clock  Clock
	notify func(context.Context, storage.AuditEntry)
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger, clock: realClock{}}
}

func (l *Logger) WithClock(clock Clock) {
	l.clock = clock
}

// SetNotifier installs a hook invoked after every durable write, used to
// mirror entries to the guild's security log channel and the alert webhook.
func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditEntry)) {
	l.notify = notify
}

// RecordDecision stores the outcome of one enforcement. Callers only record
// decisions that resulted in an action; "none" never reaches the trail.
func (l *Logger) RecordDecision(ctx context.Context, dec decision.Decision, outcome string, attempts int, detail string) error {
	if detail == "" {
		detail = dec.Reason
	}
	entry := storage.AuditEntry{
		GuildID:     dec.GuildID,
		UserID:      dec.UserID,
		ChannelID:   dec.ChannelID,
		MessageID:   dec.MessageID,
		Action:      dec.Action,
		Rules:       dec.RulesFired,
		Confidence:  dec.Combined,
		Duration:    dec.MuteDuration,
		Sensitivity: dec.Sensitivity,
		Outcome:     outcome,
		Attempts:    attempts,
		Detail:      detail,
		CreatedAt:   l.clock.Now(),
	}
	return l.write(ctx, entry)
}

// RecordConfigChange stores a moderator's settings change with their id.
func (l *Logger) RecordConfigChange(ctx context.Context, guildID, moderatorID, detail string) error {
	entry := storage.AuditEntry{
		GuildID:     guildID,
		Action:      ActionConfigChange,
		ModeratorID: moderatorID,
		Outcome:     OutcomeSuccess,
		Detail:      detail,
		CreatedAt:   l.clock.Now(),
	}
	return l.write(ctx, entry)
}

func (l *Logger) write(ctx context.Context, entry storage.AuditEntry) error {
	id, err := l.store.AddAuditEntry(ctx, entry)
	if err != nil {
		auditWriteFailures.Inc()
		return fmt.Errorf("audit write: %w", err)
	}
	entry.ID = id
	auditWrites.WithLabelValues(entry.Action).Inc()

	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit",
		zap.String("guild_id", entry.GuildID),
		zap.String("user_id", entry.UserID),
		zap.String("action", entry.Action),
		zap.Strings("rules", entry.Rules),
		zap.Float64("confidence", entry.Confidence),
		zap.String("outcome", entry.Outcome),
		zap.String("detail", entry.Detail))
	return nil
}

// Query returns the guild's entries newest first.
func (l *Logger) Query(ctx context.Context, guildID string, filter storage.AuditFilter) ([]storage.AuditEntry, error) {
	return l.store.ListAuditEntries(ctx, guildID, filter)
}

// Cleanup drops entries older than the retention window.
func (l *Logger) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	purged, err := l.store.CleanupAuditEntries(ctx, retentionDays)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		l.logger.Info("audit retention", zap.Int64("purged", purged), zap.Int("retention_days", retentionDays))
	}
	return purged, nil
}
