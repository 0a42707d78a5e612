package storage

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)

	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestUpsertGuildSettings(t *testing.T) {
	store := newTestStore(t)

	settings := GuildSettings{
		GuildID:            "g1",
		SecurityLogChannel: "c1",
		Sensitivity:        "high",
		Mode:               "normal",
		BaseMuteMinutes:    360,
		RetentionDays:      30,
		RateEnabled:        true,
		DuplicateEnabled:   true,
		LinkEnabled:        true,
		AccountEnabled:     true,
	}

	if err := store.UpsertGuildSettings(context.Background(), settings); err != nil {
		t.Fatalf("upsert guild settings: %v", err)
	}

	settings.SecurityLogChannel = "c2"
	settings.LinkEnabled = false
	if err := store.UpsertGuildSettings(context.Background(), settings); err != nil {
		t.Fatalf("update guild settings: %v", err)
	}

	got, err := store.GetGuildSettings(context.Background(), "g1", GuildSettings{})
	if err != nil {
		t.Fatalf("get guild settings: %v", err)
	}
	if got.SecurityLogChannel != "c2" {
		t.Fatalf("expected channel c2, got %q", got.SecurityLogChannel)
	}
	if got.Sensitivity != "high" {
		t.Fatalf("expected sensitivity high, got %q", got.Sensitivity)
	}
	if got.LinkEnabled {
		t.Fatalf("link toggle did not persist")
	}
}

func TestGetGuildSettingsFallsBackToDefaults(t *testing.T) {
	store := newTestStore(t)

	defaults := GuildSettings{Sensitivity: "medium", Mode: "normal", RateEnabled: true}
	got, err := store.GetGuildSettings(context.Background(), "unknown", defaults)
	if err != nil {
		t.Fatalf("get guild settings: %v", err)
	}
	if got.GuildID != "unknown" {
		t.Fatalf("expected guild id to be filled in, got %q", got.GuildID)
	}
	if got.Sensitivity != "medium" || !got.RateEnabled {
		t.Fatalf("defaults not applied: %+v", got)
	}
}

func TestEscalateOffense(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	window := 24 * time.Hour

	for want := 1; want <= 3; want++ {
		count, err := store.EscalateOffense(context.Background(), "g1", "u1", now, window)
		if err != nil {
			t.Fatalf("escalate offense: %v", err)
		}
		if count != want {
			t.Fatalf("expected count %d, got %d", want, count)
		}
		now = now.Add(time.Hour)
	}

	off, err := store.GetOffense(context.Background(), "g1", "u1")
	if err != nil {
		t.Fatalf("get offense: %v", err)
	}
	if off.Count != 3 {
		t.Fatalf("expected stored count 3, got %d", off.Count)
	}
	if off.ResetAt == nil {
		t.Fatalf("expected a reset time")
	}
}

func TestEscalateOffenseResetsAfterWindow(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	window := 24 * time.Hour

	if _, err := store.EscalateOffense(context.Background(), "g1", "u1", now, window); err != nil {
		t.Fatalf("escalate offense: %v", err)
	}
	if _, err := store.EscalateOffense(context.Background(), "g1", "u1", now.Add(time.Hour), window); err != nil {
		t.Fatalf("escalate offense: %v", err)
	}

	count, err := store.EscalateOffense(context.Background(), "g1", "u1", now.Add(26*time.Hour), window)
	if err != nil {
		t.Fatalf("escalate offense: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count to reset to 1 after the window, got %d", count)
	}
}

func TestEscalateOffenseIsolatesUsers(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.EscalateOffense(context.Background(), "g1", "u1", now, 24*time.Hour); err != nil {
		t.Fatalf("escalate offense: %v", err)
	}
	count, err := store.EscalateOffense(context.Background(), "g1", "u2", now, 24*time.Hour)
	if err != nil {
		t.Fatalf("escalate offense: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected independent count for second user, got %d", count)
	}
}

func TestAuditEntriesReverseChronological(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		entry := AuditEntry{
			GuildID:     "g1",
			UserID:      "u1",
			Action:      "warn",
			Rules:       []string{"rate"},
			Confidence:  0.7,
			Sensitivity: "medium",
			Outcome:     "success",
			Attempts:    1,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if _, err := store.AddAuditEntry(context.Background(), entry); err != nil {
			t.Fatalf("add audit entry: %v", err)
		}
	}

	entries, err := store.ListAuditEntries(context.Background(), "g1", AuditFilter{})
	if err != nil {
		t.Fatalf("list audit entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CreatedAt.After(entries[i-1].CreatedAt) {
			t.Fatalf("entries not in reverse chronological order")
		}
	}
	if entries[0].Rules[0] != "rate" {
		t.Fatalf("rules did not round-trip: %+v", entries[0].Rules)
	}
}

func TestAuditEntriesFilter(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	add := func(userID, action string) {
		t.Helper()
		entry := AuditEntry{GuildID: "g1", UserID: userID, Action: action, Outcome: "success", CreatedAt: base}
		if _, err := store.AddAuditEntry(context.Background(), entry); err != nil {
			t.Fatalf("add audit entry: %v", err)
		}
	}
	add("u1", "warn")
	add("u1", "mute")
	add("u2", "mute")

	byUser, err := store.ListAuditEntries(context.Background(), "g1", AuditFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(byUser) != 2 {
		t.Fatalf("expected 2 entries for u1, got %d", len(byUser))
	}

	byAction, err := store.ListAuditEntries(context.Background(), "g1", AuditFilter{Action: "mute"})
	if err != nil {
		t.Fatalf("list by action: %v", err)
	}
	if len(byAction) != 2 {
		t.Fatalf("expected 2 mute entries, got %d", len(byAction))
	}

	limited, err := store.ListAuditEntries(context.Background(), "g1", AuditFilter{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 entry with limit, got %d", len(limited))
	}
}

func TestCleanupAuditEntries(t *testing.T) {
	store := newTestStore(t)

	old := AuditEntry{GuildID: "g1", UserID: "u1", Action: "warn", CreatedAt: time.Now().AddDate(0, 0, -40)}
	fresh := AuditEntry{GuildID: "g1", UserID: "u1", Action: "warn", CreatedAt: time.Now()}
	if _, err := store.AddAuditEntry(context.Background(), old); err != nil {
		t.Fatalf("add old entry: %v", err)
	}
	if _, err := store.AddAuditEntry(context.Background(), fresh); err != nil {
		t.Fatalf("add fresh entry: %v", err)
	}

	purged, err := store.CleanupAuditEntries(context.Background(), 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged entry, got %d", purged)
	}

	entries, err := store.ListAuditEntries(context.Background(), "g1", AuditFilter{})
	if err != nil {
		t.Fatalf("list audit entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", len(entries))
	}
}

func TestDomainLists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AddDomainBlock(ctx, "g1", "Discord.GIFT"); err != nil {
		t.Fatalf("add block: %v", err)
	}
	if err := store.AddDomainBlock(ctx, "g1", "discord.gift"); err != nil {
		t.Fatalf("add duplicate block: %v", err)
	}
	if err := store.AddDomainAllow(ctx, "g1", "github.com"); err != nil {
		t.Fatalf("add allow: %v", err)
	}

	blocked, err := store.ListDomainBlock(ctx, "g1")
	if err != nil {
		t.Fatalf("list block: %v", err)
	}
	if len(blocked) != 1 || blocked[0] != "discord.gift" {
		t.Fatalf("unexpected blocklist: %v", blocked)
	}

	if err := store.RemoveDomainBlock(ctx, "g1", "discord.gift"); err != nil {
		t.Fatalf("remove block: %v", err)
	}
	blocked, err = store.ListDomainBlock(ctx, "g1")
	if err != nil {
		t.Fatalf("list block: %v", err)
	}
	if len(blocked) != 0 {
		t.Fatalf("blocklist not emptied: %v", blocked)
	}

	allowed, err := store.ListDomainAllow(ctx, "g1")
	if err != nil {
		t.Fatalf("list allow: %v", err)
	}
	if len(allowed) != 1 || allowed[0] != "github.com" {
		t.Fatalf("unexpected allowlist: %v", allowed)
	}
}
