package executor

import (
	"sync"
	"time"

	"warden/internal/decision"
)

const historyLimit = 1000

// Record is one finished execution kept for the status surface.
type Record struct {
	ID       string
	GuildID  string
	UserID   string
	Action   string
	Success  bool
	Rejected bool
	Skipped  bool
	Attempts int
	Err      string
	At       time.Time
}

type history struct {
	mu      sync.Mutex
	limit   int
	records []Record
}

func newHistory(limit int) *history {
	return &history{limit: limit}
}

func (h *history) add(dec decision.Decision, out Outcome) {
	record := Record{
		ID:       out.ID,
		GuildID:  dec.GuildID,
		UserID:   dec.UserID,
		Action:   out.Action,
		Success:  out.Success,
		Rejected: out.Rejected,
		Skipped:  out.Skipped,
		Attempts: out.Attempts,
		At:       time.Now(),
	}
	if out.Err != nil {
		record.Err = out.Err.Error()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	if len(h.records) > h.limit {
		h.records = h.records[len(h.records)-h.limit:]
	}
}

func (h *history) recent(n int) []Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n > len(h.records) {
		n = len(h.records)
	}
	out := make([]Record, 0, n)
	for i := len(h.records) - 1; i >= len(h.records)-n; i-- {
		out = append(out, h.records[i])
	}
	return out
}
