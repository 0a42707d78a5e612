package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

// GuildSettings are the per-guild overrides persisted across restarts. Zero
// values fall back to the process configuration in GetGuildSettings.
type GuildSettings struct {
	GuildID            string
	SecurityLogChannel string
	Sensitivity        string
	Mode               string
	BaseMuteMinutes    int
	RetentionDays      int
	RateEnabled        bool
	DuplicateEnabled   bool
	LinkEnabled        bool
	AccountEnabled     bool
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps sqlite writes serialized and makes :memory:
	// databases stable across the pool.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Migrate() error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join("migrations", file))
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

func (s *Store) GetGuildSettings(ctx context.Context, guildID string, defaults GuildSettings) (GuildSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT security_log_channel, sensitivity, mode, base_mute_minutes, retention_days,
		rate_enabled, duplicate_enabled, link_enabled, account_enabled
		FROM guild_settings WHERE guild_id = ?`, guildID)

	result := defaults
	result.GuildID = guildID

	var rate, duplicate, link, account int
	err := row.Scan(
		&result.SecurityLogChannel,
		&result.Sensitivity,
		&result.Mode,
		&result.BaseMuteMinutes,
		&result.RetentionDays,
		&rate,
		&duplicate,
		&link,
		&account,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, nil
		}
		return GuildSettings{}, err
	}
	result.RateEnabled = rate == 1
	result.DuplicateEnabled = duplicate == 1
	result.LinkEnabled = link == 1
	result.AccountEnabled = account == 1
	if result.Sensitivity == "" {
		result.Sensitivity = defaults.Sensitivity
	}
	if result.Mode == "" {
		result.Mode = defaults.Mode
	}
	return result, nil
}

func (s *Store) UpsertGuildSettings(ctx context.Context, settings GuildSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guild_settings (
			guild_id, security_log_channel, sensitivity, mode, base_mute_minutes,
			retention_days, rate_enabled, duplicate_enabled, link_enabled, account_enabled
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			security_log_channel = excluded.security_log_channel,
			sensitivity = excluded.sensitivity,
			mode = excluded.mode,
			base_mute_minutes = excluded.base_mute_minutes,
			retention_days = excluded.retention_days,
			rate_enabled = excluded.rate_enabled,
			duplicate_enabled = excluded.duplicate_enabled,
			link_enabled = excluded.link_enabled,
			account_enabled = excluded.account_enabled
	`,
		settings.GuildID,
		settings.SecurityLogChannel,
		settings.Sensitivity,
		settings.Mode,
		settings.BaseMuteMinutes,
		settings.RetentionDays,
		boolToInt(settings.RateEnabled),
		boolToInt(settings.DuplicateEnabled),
		boolToInt(settings.LinkEnabled),
		boolToInt(settings.AccountEnabled),
	)
	return err
}

func (s *Store) AddDomainAllow(ctx context.Context, guildID, domain string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO domain_allowlist (guild_id, domain) VALUES (?, ?)`, guildID, strings.ToLower(domain))
	return err
}

func (s *Store) RemoveDomainAllow(ctx context.Context, guildID, domain string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM domain_allowlist WHERE guild_id = ? AND domain = ?`, guildID, strings.ToLower(domain))
	return err
}

func (s *Store) ListDomainAllow(ctx context.Context, guildID string) ([]string, error) {
	return s.listDomains(ctx, `SELECT domain FROM domain_allowlist WHERE guild_id = ? ORDER BY domain`, guildID)
}

func (s *Store) AddDomainBlock(ctx context.Context, guildID, domain string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO domain_blocklist (guild_id, domain) VALUES (?, ?)`, guildID, strings.ToLower(domain))
	return err
}

func (s *Store) RemoveDomainBlock(ctx context.Context, guildID, domain string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM domain_blocklist WHERE guild_id = ? AND domain = ?`, guildID, strings.ToLower(domain))
	return err
}

func (s *Store) ListDomainBlock(ctx context.Context, guildID string) ([]string, error) {
	return s.listDomains(ctx, `SELECT domain FROM domain_blocklist WHERE guild_id = ? ORDER BY domain`, guildID)
}

func (s *Store) listDomains(ctx context.Context, query, guildID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, err
		}
		domains = append(domains, domain)
	}
	return domains, rows.Err()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}
