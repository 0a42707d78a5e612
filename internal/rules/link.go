package rules

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"warden/internal/config"
	"warden/internal/utils"
	"warden/internal/window"
)

var suspiciousTLDs = []string{".tk", ".ml", ".ga", ".cf", ".gq"}

const urlCacheSize = 1024

// Link scores links in a message against the guild's domain lists. Risk
// accumulates per distinct host and the signal fires once it crosses the
// policy threshold. Normalizing a URL costs a parse and an IDNA conversion,
// so results are cached; the cache is keyed on the raw URL text and holds
// nothing policy-dependent.
type Link struct {
	urls *lru.Cache[string, cachedURL]
}

type cachedURL struct {
	norm utils.NormalizedURL
	ok   bool
}

func NewLink() *Link {
	cache, _ := lru.New[string, cachedURL](urlCacheSize)
	return &Link{urls: cache}
}

func (l *Link) Name() string { return RuleLink }

func (l *Link) Evaluate(ev Event, _ window.Snapshot, pol config.GuildPolicy) (Signal, bool) {
	if !pol.Link.Enabled {
		return Signal{}, false
	}

	risk := 0.0
	var notes []string
	seen := make(map[string]struct{})

	for _, raw := range utils.ExtractURLs(ev.Content) {
		norm, ok := l.normalize(raw)
		if !ok || norm.Host == "" {
			continue
		}
		if _, dup := seen[norm.Host]; dup {
			continue
		}
		seen[norm.Host] = struct{}{}

		if utils.HostMatches(norm.Host, pol.Link.SafeDomains) {
			risk -= 0.2
			continue
		}

		switch {
		case utils.HostMatches(norm.Host, pol.Link.DenyDomains):
			risk += 0.8
			notes = append(notes, "denied domain "+norm.Host)
		case utils.HostMatches(norm.Host, pol.Link.Shorteners):
			risk += 0.3
			notes = append(notes, "shortener "+norm.Host)
		case utils.IsIPHost(norm.Host):
			risk += 0.3
			notes = append(notes, "ip literal "+norm.Host)
		case hasSuspiciousTLD(norm.Host):
			risk += 0.4
			notes = append(notes, "suspicious tld "+norm.Host)
		}

		if utils.HasExecutableSuffix(norm.Path) {
			risk += 0.5
			notes = append(notes, "executable link "+norm.Host)
		}
		if norm.Insecure {
			risk += 0.1
		}
	}

	// Scam posts often paste a denied domain without a scheme, which the
	// URL regex never sees.
	lower := strings.ToLower(ev.Content)
	for domain := range pol.Link.DenyDomains {
		if _, dup := seen[domain]; dup {
			continue
		}
		if strings.Contains(lower, domain) {
			seen[domain] = struct{}{}
			risk += 0.8
			notes = append(notes, "denied domain "+domain)
		}
	}

	if hasMassMention(ev.Content) && hasScamKeyword(lower, pol.Link.ScamKeywords) {
		risk += 0.4
		notes = append(notes, "mass mention with scam keywords")
	}

	if risk > 1.0 {
		risk = 1.0
	}
	if len(notes) == 0 || risk < pol.Link.RiskThreshold {
		return Signal{}, false
	}

	return Signal{
		Rule:       RuleLink,
		Confidence: risk,
		Evidence:   strings.Join(notes, "; "),
	}, true
}

func (l *Link) normalize(raw string) (utils.NormalizedURL, bool) {
	if cached, ok := l.urls.Get(raw); ok {
		return cached.norm, cached.ok
	}
	norm, err := utils.NormalizeURL(raw)
	entry := cachedURL{norm: norm, ok: err == nil}
	l.urls.Add(raw, entry)
	return entry.norm, entry.ok
}

func hasSuspiciousTLD(host string) bool {
	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(host, tld) {
			return true
		}
	}
	return false
}

func hasMassMention(content string) bool {
	return strings.Contains(content, "@everyone") || strings.Contains(content, "@here")
}

func hasScamKeyword(lower string, keywords []string) bool {
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}
