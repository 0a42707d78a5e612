package window

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"warden/internal/fingerprint"
)

// Entry is one past message in a user's window.
type Entry struct {
	At        time.Time
	ChannelID string
	MessageID string
	Print     fingerprint.Fingerprint
}

// Snapshot is an immutable copy of one (guild, user) window taken at append
// time, oldest entry first. Rule evaluators read it without holding any lock.
type Snapshot struct {
	GuildID string
	UserID  string
	Entries []Entry
}

func (s Snapshot) Newest() (Entry, bool) {
	if len(s.Entries) == 0 {
		return Entry{}, false
	}
	return s.Entries[len(s.Entries)-1], true
}

func (s Snapshot) CountSince(cutoff time.Time) int {
	count := 0
	for i := len(s.Entries) - 1; i >= 0; i-- {
		if !s.Entries[i].At.After(cutoff) {
			break
		}
		count++
	}
	return count
}

// Store keeps a bounded recent-message window per (guild, user) key. The map
// is sharded; mutation is guarded per key, never process-wide.
type Store struct {
	maxCount int
	maxAge   time.Duration
	windows  *xsync.MapOf[string, *userWindow]
}

type userWindow struct {
	mu      sync.Mutex
	dead    bool
	entries []Entry
}

func NewStore(maxCount int, maxAge time.Duration) *Store {
	return &Store{
		maxCount: maxCount,
		maxAge:   maxAge,
		windows:  xsync.NewMapOf[string, *userWindow](),
	}
}

func key(guildID, userID string) string {
	return guildID + ":" + userID
}

// Record appends the message to the author's window, evicts entries outside
// the count or age bound, and returns the resulting snapshot. Windows for
// never-seen users are created lazily.
func (s *Store) Record(guildID, userID, channelID, messageID string, print fingerprint.Fingerprint, at time.Time) Snapshot {
	k := key(guildID, userID)
	for {
		w, _ := s.windows.LoadOrCompute(k, func() *userWindow { return &userWindow{} })
		w.mu.Lock()
		if w.dead {
			// lost a race against Sweep; the key was removed
			w.mu.Unlock()
			continue
		}
		w.evict(at.Add(-s.maxAge))
		w.entries = append(w.entries, Entry{At: at, ChannelID: channelID, MessageID: messageID, Print: print})
		if len(w.entries) > s.maxCount {
			w.entries = w.entries[len(w.entries)-s.maxCount:]
		}
		snap := w.snapshotLocked(guildID, userID)
		w.mu.Unlock()
		return snap
	}
}

// Snapshot returns a read view of the window as of now, evicting aged entries
// first. Unknown users yield an empty snapshot.
func (s *Store) Snapshot(guildID, userID string, now time.Time) Snapshot {
	w, ok := s.windows.Load(key(guildID, userID))
	if !ok {
		return Snapshot{GuildID: guildID, UserID: userID}
	}
	w.mu.Lock()
	w.evict(now.Add(-s.maxAge))
	snap := w.snapshotLocked(guildID, userID)
	w.mu.Unlock()
	return snap
}

// Sweep drops windows whose entries have all aged out, bounding memory for
// users that went quiet. Returns the number of windows removed.
func (s *Store) Sweep(now time.Time) int {
	removed := 0
	cutoff := now.Add(-s.maxAge)
	s.windows.Range(func(k string, w *userWindow) bool {
		w.mu.Lock()
		w.evict(cutoff)
		if len(w.entries) == 0 {
			w.dead = true
			s.windows.Delete(k)
			removed++
		}
		w.mu.Unlock()
		return true
	})
	return removed
}

func (s *Store) Size() int {
	return s.windows.Size()
}

func (w *userWindow) evict(cutoff time.Time) {
	idx := 0
	for _, entry := range w.entries {
		if entry.At.After(cutoff) {
			break
		}
		idx++
	}
	w.entries = w.entries[idx:]
}

func (w *userWindow) snapshotLocked(guildID, userID string) Snapshot {
	entries := make([]Entry, len(w.entries))
	copy(entries, w.entries)
	return Snapshot{GuildID: guildID, UserID: userID, Entries: entries}
}
