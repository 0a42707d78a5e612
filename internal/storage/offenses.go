package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Offense struct {
	GuildID string
	UserID  string
	Count   int
	LastAt  time.Time
	ResetAt *time.Time
}

func (s *Store) GetOffense(ctx context.Context, guildID, userID string) (Offense, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, user_id, count_total, last_at, reset_at
		FROM offenses
		WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)

	var off Offense
	var lastAt int64
	var resetAt sql.NullInt64
	err := row.Scan(&off.GuildID, &off.UserID, &off.Count, &lastAt, &resetAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Offense{GuildID: guildID, UserID: userID}, nil
		}
		return Offense{}, err
	}
	off.LastAt = time.Unix(lastAt, 0)
	if resetAt.Valid {
		value := time.Unix(resetAt.Int64, 0)
		off.ResetAt = &value
	}
	return off, nil
}

// EscalateOffense bumps the offender's count inside one transaction and
// returns the new count. A count whose reset time has passed starts over at
// one; every bump pushes the reset time out by the escalation window.
func (s *Store) EscalateOffense(ctx context.Context, guildID, userID string, now time.Time, window time.Duration) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var count int
	var resetAt sql.NullInt64
	row := tx.QueryRowContext(ctx, `
		SELECT count_total, reset_at
		FROM offenses
		WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)
	scanErr := row.Scan(&count, &resetAt)
	if scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
		err = scanErr
		return 0, err
	}
	if scanErr == nil && resetAt.Valid && now.Unix() >= resetAt.Int64 {
		count = 0
	}

	count++
	var nextReset any
	if window > 0 {
		nextReset = now.Add(window).Unix()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO offenses (guild_id, user_id, count_total, last_at, reset_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			count_total = excluded.count_total,
			last_at = excluded.last_at,
			reset_at = excluded.reset_at
	`, guildID, userID, count, now.Unix(), nextReset)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}
