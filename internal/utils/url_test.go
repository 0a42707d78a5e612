package utils

import "testing"

func TestNormalizeURL(t *testing.T) {
	norm, err := NormalizeURL("https://Example.com/path?utm_source=test&x=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if norm.Host != "example.com" {
		t.Fatalf("unexpected host: %s", norm.Host)
	}
	if norm.URL != "https://example.com/path?x=1" {
		t.Fatalf("unexpected normalized url: %s", norm.URL)
	}
	if norm.Insecure {
		t.Fatalf("https url flagged insecure")
	}
}

func TestNormalizeURLInsecure(t *testing.T) {
	norm, err := NormalizeURL("http://example.com/file.EXE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !norm.Insecure {
		t.Fatalf("http url not flagged insecure")
	}
	if !HasExecutableSuffix(norm.Path) {
		t.Fatalf("executable suffix not detected in %s", norm.Path)
	}
}

func TestExtractURLs(t *testing.T) {
	urls := ExtractURLs("check https://a.com and http://b.com/x now")
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %d", len(urls))
	}
}

func TestHostMatches(t *testing.T) {
	domains := map[string]struct{}{"discord.gift": {}}
	if !HostMatches("discord.gift", domains) {
		t.Fatalf("expected exact match")
	}
	if !HostMatches("cdn.discord.gift", domains) {
		t.Fatalf("expected subdomain match")
	}
	if HostMatches("notdiscord.gift", domains) {
		t.Fatalf("unexpected match for sibling domain")
	}
	if HostMatches("gift", domains) {
		t.Fatalf("unexpected match for bare label")
	}
}

func TestIsIPHost(t *testing.T) {
	if !IsIPHost("203.0.113.9") {
		t.Fatalf("expected ip literal to match")
	}
	if IsIPHost("example.com") {
		t.Fatalf("hostname treated as ip")
	}
}
