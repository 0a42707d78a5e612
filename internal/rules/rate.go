package rules

import (
	"fmt"

	"warden/internal/config"
	"warden/internal/window"
)

// Rate fires when the author's message count inside the trailing sub-window
// meets the sensitivity threshold. Confidence grows with the overshoot.
type Rate struct{}

func NewRate() *Rate {
	return &Rate{}
}

func (r *Rate) Name() string {
	return RuleRate
}

func (r *Rate) Evaluate(ev Event, snap window.Snapshot, pol config.GuildPolicy) (Signal, bool) {
	if !pol.Rate.Enabled || pol.Rate.Threshold <= 0 {
		return Signal{}, false
	}

	newest, ok := snap.Newest()
	if !ok {
		return Signal{}, false
	}

	count := snap.CountSince(newest.At.Add(-pol.Rate.Window))
	if count < pol.Rate.Threshold {
		return Signal{}, false
	}

	overshoot := float64(count-pol.Rate.Threshold) / float64(pol.Rate.Threshold)
	confidence := 0.7 + 0.3*overshoot
	if confidence > 1.0 {
		confidence = 1.0
	}

	return Signal{
		Rule:       RuleRate,
		Confidence: confidence,
		Evidence:   fmt.Sprintf("%d messages in %s (threshold %d)", count, pol.Rate.Window, pol.Rate.Threshold),
	}, true
}
