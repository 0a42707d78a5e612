package config

import (
	"strings"
	"time"
)

// GuildPolicy is the resolved view of configuration one evaluation runs
// against. It is built fresh per message so concurrent evaluations never
// observe a half-applied settings change.
type GuildPolicy struct {
	GuildID     string
	Sensitivity string
	AuditOnly   bool

	Rate      RatePolicy
	Duplicate DuplicatePolicy
	Link      LinkPolicy
	Account   AccountPolicy

	WarnThreshold   float64
	MuteThreshold   float64
	RateWeight      float64
	DuplicateWeight float64
	LinkWeight      float64

	BaseMute         time.Duration
	EscalationWindow time.Duration
	MaxMute          time.Duration
	DeleteOnMute     bool
}

type RatePolicy struct {
	Enabled   bool
	Window    time.Duration
	Threshold int
}

type DuplicatePolicy struct {
	Enabled   bool
	Threshold float64
	MinRun    int
	Depth     int
}

type LinkPolicy struct {
	Enabled       bool
	RiskThreshold float64
	DenyDomains   map[string]struct{}
	SafeDomains   map[string]struct{}
	Shorteners    map[string]struct{}
	ScamKeywords  []string
}

type AccountPolicy struct {
	Enabled    bool
	MaxAge     time.Duration
	MaxJoinGap time.Duration
	Multiplier float64
}

// Policy resolves the configured defaults plus the preset table for the given
// sensitivity. Medium keeps the configured values; low and high overwrite the
// preset-owned thresholds.
func (c Config) Policy(sensitivity string) GuildPolicy {
	sensitivity = NormalizeSensitivity(sensitivity)

	pol := GuildPolicy{
		Sensitivity: sensitivity,
		AuditOnly:   c.Mode == "audit",
		Rate: RatePolicy{
			Enabled:   c.Rules.Rate.Enabled,
			Window:    time.Duration(c.Rules.Rate.WindowSeconds) * time.Second,
			Threshold: c.Rules.Rate.Threshold,
		},
		Duplicate: DuplicatePolicy{
			Enabled:   c.Rules.Duplicate.Enabled,
			Threshold: c.Rules.Duplicate.Threshold,
			MinRun:    c.Rules.Duplicate.MinRun,
			Depth:     c.Rules.Duplicate.Depth,
		},
		Link: LinkPolicy{
			Enabled:       c.Rules.Link.Enabled,
			RiskThreshold: c.Rules.Link.RiskThreshold,
			DenyDomains:   domainSet(c.Rules.Link.DenyDomains),
			SafeDomains:   domainSet(c.Rules.Link.SafeDomains),
			Shorteners:    domainSet(c.Rules.Link.Shorteners),
			ScamKeywords:  c.Rules.Link.ScamKeywords,
		},
		Account: AccountPolicy{
			Enabled:    c.Rules.Account.Enabled,
			MaxAge:     time.Duration(c.Rules.Account.MaxAgeDays) * 24 * time.Hour,
			MaxJoinGap: time.Duration(c.Rules.Account.MaxJoinGapMinutes) * time.Minute,
			Multiplier: c.Rules.Account.Multiplier,
		},
		WarnThreshold:    c.Decision.WarnThreshold,
		MuteThreshold:    c.Decision.MuteThreshold,
		RateWeight:       c.Decision.RateWeight,
		DuplicateWeight:  c.Decision.DuplicateWeight,
		LinkWeight:       c.Decision.LinkWeight,
		BaseMute:         time.Duration(c.Decision.BaseMuteMinutes) * time.Minute,
		EscalationWindow: time.Duration(c.Decision.EscalationWindowHours) * time.Hour,
		MaxMute:          time.Duration(c.Decision.MaxMuteHours) * time.Hour,
		DeleteOnMute:     c.Decision.DeleteOnMute,
	}

	switch sensitivity {
	case "low":
		pol.Rate.Threshold = 8
		pol.Duplicate.Threshold = 0.80
		pol.Duplicate.MinRun = 3
		pol.Link.RiskThreshold = 0.80
		pol.WarnThreshold = 0.55
		pol.MuteThreshold = 0.80
	case "high":
		pol.Rate.Threshold = 3
		pol.Duplicate.Threshold = 0.60
		pol.Duplicate.MinRun = 2
		pol.Link.RiskThreshold = 0.35
		pol.WarnThreshold = 0.35
		pol.MuteThreshold = 0.55
	}

	return pol
}

func domainSet(domains []string) map[string]struct{} {
	set := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		set[domain] = struct{}{}
	}
	return set
}
