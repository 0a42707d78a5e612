package utils

import (
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var urlRegex = regexp.MustCompile(`https?://[^\s<>]+`)

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "fbclid", "gclid"}

var executableSuffixes = []string{".exe", ".bat", ".cmd", ".scr", ".msi"}

// NormalizedURL is the canonical form of a link: lowercase punycode host,
// tracking parameters stripped, fragment and userinfo removed.
type NormalizedURL struct {
	URL      string
	Host     string
	Path     string
	Insecure bool
}

func ExtractURLs(content string) []string {
	return urlRegex.FindAllString(content, -1)
}

func NormalizeURL(raw string) (NormalizedURL, error) {
	insecure := strings.HasPrefix(raw, "http://")
	if !insecure && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return NormalizedURL{}, err
	}

	host := strings.ToLower(parsed.Hostname())
	if asciiHost, err := idna.ToASCII(host); err == nil {
		host = asciiHost
	}

	parsed.Host = host
	parsed.Fragment = ""
	parsed.User = nil

	query := parsed.Query()
	for _, key := range trackingParams {
		query.Del(key)
	}
	parsed.RawQuery = normalizeQuery(query)

	return NormalizedURL{
		URL:      parsed.String(),
		Host:     host,
		Path:     strings.ToLower(parsed.Path),
		Insecure: insecure,
	}, nil
}

func normalizeQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	clean := url.Values{}
	for _, key := range keys {
		clean[key] = values[key]
	}
	return clean.Encode()
}

// HostMatches reports whether the host or any parent domain of it is in the
// set, so cdn.discord.gift matches an entry for discord.gift. Bare TLDs are
// never consulted.
func HostMatches(host string, domains map[string]struct{}) bool {
	if len(domains) == 0 {
		return false
	}
	host = strings.ToLower(host)
	for strings.Contains(host, ".") {
		if _, ok := domains[host]; ok {
			return true
		}
		host = host[strings.Index(host, ".")+1:]
	}
	return false
}

func IsIPHost(host string) bool {
	return net.ParseIP(host) != nil
}

func HasExecutableSuffix(path string) bool {
	path = strings.ToLower(path)
	for _, suffix := range executableSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}
