package fingerprint

import "testing"

func TestNormalizeFoldsCaseAndAccents(t *testing.T) {
	got := Normalize("  Buy CHEAP    Nítro!!! ")
	if got != "buy cheap nitro" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}

func TestSimilarityIdentical(t *testing.T) {
	a := New("free nitro here")
	b := New("FREE   nitro here!!")
	if sim := Similarity(a, b); sim != 1.0 {
		t.Fatalf("expected 1.0, got %f", sim)
	}
}

func TestSimilarityNearDuplicate(t *testing.T) {
	a := New("hello world")
	b := New("hallo world")
	sim := Similarity(a, b)
	if sim < 0.85 || sim >= 1.0 {
		t.Fatalf("expected near-duplicate score, got %f", sim)
	}
}

func TestSimilarityDisjoint(t *testing.T) {
	a := New("good morning everyone")
	b := New("zzz qqq xxx")
	if sim := Similarity(a, b); sim > 0.3 {
		t.Fatalf("expected low score, got %f", sim)
	}
}

func TestSimilarityEmpty(t *testing.T) {
	if sim := Similarity(New(""), New("")); sim != 1.0 {
		t.Fatalf("expected 1.0 for two empty messages, got %f", sim)
	}
	if sim := Similarity(New(""), New("hello")); sim != 0.0 {
		t.Fatalf("expected 0.0 against empty, got %f", sim)
	}
}
