package window

import (
	"fmt"
	"testing"
	"time"

	"warden/internal/fingerprint"
)

func record(s *Store, n int, at time.Time) Snapshot {
	return s.Record("g1", "u1", "c1", fmt.Sprintf("m%d", n), fingerprint.New(fmt.Sprintf("message %d", n)), at)
}

func TestRecordCountBound(t *testing.T) {
	store := NewStore(3, 10*time.Minute)
	base := time.Unix(0, 0)

	var snap Snapshot
	for i := 0; i < 5; i++ {
		snap = record(store, i, base.Add(time.Duration(i)*time.Second))
	}
	if len(snap.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap.Entries))
	}
	if snap.Entries[0].MessageID != "m2" {
		t.Fatalf("expected oldest m2, got %s", snap.Entries[0].MessageID)
	}
}

func TestRecordAgeBound(t *testing.T) {
	store := NewStore(50, 10*time.Minute)
	base := time.Unix(0, 0)

	record(store, 0, base)
	record(store, 1, base.Add(2*time.Minute))
	snap := record(store, 2, base.Add(11*time.Minute))

	if len(snap.Entries) != 2 {
		t.Fatalf("expected 2 entries after age eviction, got %d", len(snap.Entries))
	}
	if snap.Entries[0].MessageID != "m1" {
		t.Fatalf("expected m1 to survive, got %s", snap.Entries[0].MessageID)
	}
}

func TestSnapshotEmptiesAfterWindowElapses(t *testing.T) {
	store := NewStore(50, 10*time.Minute)
	base := time.Unix(0, 0)

	record(store, 0, base)
	record(store, 1, base.Add(time.Second))

	snap := store.Snapshot("g1", "u1", base.Add(20*time.Minute))
	if len(snap.Entries) != 0 {
		t.Fatalf("expected empty window, got %d entries", len(snap.Entries))
	}
}

func TestSnapshotIsolation(t *testing.T) {
	store := NewStore(50, 10*time.Minute)
	base := time.Unix(0, 0)

	snap := record(store, 0, base)
	record(store, 1, base.Add(time.Second))

	if len(snap.Entries) != 1 {
		t.Fatalf("snapshot mutated by later append: %d entries", len(snap.Entries))
	}
}

func TestSnapshotUnknownUser(t *testing.T) {
	store := NewStore(50, 10*time.Minute)
	snap := store.Snapshot("g1", "nobody", time.Unix(0, 0))
	if len(snap.Entries) != 0 {
		t.Fatalf("expected empty snapshot")
	}
}

func TestSweepRemovesIdleWindows(t *testing.T) {
	store := NewStore(50, 10*time.Minute)
	base := time.Unix(0, 0)

	record(store, 0, base)
	store.Record("g1", "u2", "c1", "x1", fingerprint.New("hello"), base.Add(9*time.Minute))

	removed := store.Sweep(base.Add(15 * time.Minute))
	if removed != 1 {
		t.Fatalf("expected 1 window removed, got %d", removed)
	}
	if store.Size() != 1 {
		t.Fatalf("expected 1 window left, got %d", store.Size())
	}
}

func TestCountSince(t *testing.T) {
	store := NewStore(50, 10*time.Minute)
	base := time.Unix(0, 0)

	for i := 0; i < 4; i++ {
		record(store, i, base.Add(time.Duration(i)*5*time.Second))
	}
	snap := store.Snapshot("g1", "u1", base.Add(15*time.Second))
	if got := snap.CountSince(base.Add(4 * time.Second)); got != 3 {
		t.Fatalf("expected 3 recent entries, got %d", got)
	}
}
