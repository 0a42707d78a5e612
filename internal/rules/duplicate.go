package rules

import (
	"fmt"

	"warden/internal/config"
	"warden/internal/fingerprint"
	"warden/internal/window"
)

// Duplicate compares the newest message against the previous entries in the
// window. It fires when an unbroken run of near-duplicates (newest included)
// reaches the sensitivity minimum; confidence is the best pair similarity,
// ties resolved toward the most recent pair.
type Duplicate struct{}

func NewDuplicate() *Duplicate {
	return &Duplicate{}
}

func (d *Duplicate) Name() string {
	return RuleDuplicate
}

func (d *Duplicate) Evaluate(ev Event, snap window.Snapshot, pol config.GuildPolicy) (Signal, bool) {
	if !pol.Duplicate.Enabled {
		return Signal{}, false
	}

	entries := snap.Entries
	if len(entries) < pol.Duplicate.MinRun {
		return Signal{}, false
	}

	newest := entries[len(entries)-1]
	run := 1
	unbroken := true
	best := 0.0
	bestID := ""

	for back := 1; back < len(entries) && back <= pol.Duplicate.Depth; back++ {
		prev := entries[len(entries)-1-back]
		sim := fingerprint.Similarity(newest.Print, prev.Print)
		if sim > best {
			best = sim
			bestID = prev.MessageID
		}
		if unbroken && sim >= pol.Duplicate.Threshold {
			run++
		} else {
			unbroken = false
		}
	}

	if best < pol.Duplicate.Threshold || run < pol.Duplicate.MinRun {
		return Signal{}, false
	}

	return Signal{
		Rule:       RuleDuplicate,
		Confidence: best,
		Evidence:   fmt.Sprintf("similarity %.2f with message %s, run of %d", best, bestID, run),
	}, true
}
