package storage

import (
	"context"
	"strings"
	"time"
)

// AuditEntry is one enforcement outcome or moderator configuration change.
// Rules holds the fired rule names; Outcome records what the executor
// actually managed to do.
type AuditEntry struct {
	ID          int64
	GuildID     string
	UserID      string
	ChannelID   string
	MessageID   string
	Action      string
	Rules       []string
	Confidence  float64
	Duration    time.Duration
	Sensitivity string
	ModeratorID string
	Outcome     string
	Attempts    int
	Detail      string
	CreatedAt   time.Time
}

// AuditFilter narrows ListAuditEntries. Zero fields are ignored; Limit
// defaults to 50.
type AuditFilter struct {
	UserID string
	Action string
	Limit  int
}

func (s *Store) AddAuditEntry(ctx context.Context, entry AuditEntry) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (
			guild_id, user_id, channel_id, message_id, action, rules, confidence,
			duration_seconds, sensitivity, moderator_id, outcome, attempts, detail, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.GuildID,
		entry.UserID,
		entry.ChannelID,
		entry.MessageID,
		entry.Action,
		strings.Join(entry.Rules, ","),
		entry.Confidence,
		int64(entry.Duration.Seconds()),
		entry.Sensitivity,
		entry.ModeratorID,
		entry.Outcome,
		entry.Attempts,
		entry.Detail,
		entry.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Store) ListAuditEntries(ctx context.Context, guildID string, filter AuditFilter) ([]AuditEntry, error) {
	query := `
		SELECT id, guild_id, user_id, channel_id, message_id, action, rules, confidence,
		duration_seconds, sensitivity, moderator_id, outcome, attempts, detail, created_at
		FROM audit_log
		WHERE guild_id = ?`
	args := []any{guildID}

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Action != "" {
		query += ` AND action = ?`
		args = append(args, filter.Action)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var rules string
		var durationSeconds int64
		var created int64
		if err := rows.Scan(
			&entry.ID,
			&entry.GuildID,
			&entry.UserID,
			&entry.ChannelID,
			&entry.MessageID,
			&entry.Action,
			&rules,
			&entry.Confidence,
			&durationSeconds,
			&entry.Sensitivity,
			&entry.ModeratorID,
			&entry.Outcome,
			&entry.Attempts,
			&entry.Detail,
			&created,
		); err != nil {
			return nil, err
		}
		if rules != "" {
			entry.Rules = strings.Split(rules, ",")
		}
		entry.Duration = time.Duration(durationSeconds) * time.Second
		entry.CreatedAt = time.Unix(created, 0)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) CleanupAuditEntries(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
