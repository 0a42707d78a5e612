package fingerprint

import (
	"hash/fnv"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxCompareRunes bounds the edit-distance table so a pathological message
// cannot stall its partition worker.
const maxCompareRunes = 256

var nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]+`)

// Fingerprint is the normalized representation of one message's content used
// for similarity comparison. Norm is lowercase, accent-folded, and collapsed
// to single-space token form; Hash is an FNV-64 of Norm for cheap equality.
type Fingerprint struct {
	Norm string
	Hash uint64
}

func New(content string) Fingerprint {
	n := Normalize(content)
	h := fnv.New64a()
	_, _ = h.Write([]byte(n))
	return Fingerprint{Norm: n, Hash: h.Sum64()}
}

func Normalize(content string) string {
	folded := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped := strings.ToLower(nonTokenChars.ReplaceAllString(content, " "))
	normalized, _, err := transform.String(folded, stripped)
	if err != nil {
		normalized = stripped
	}
	return strings.Join(strings.Fields(normalized), " ")
}

// Similarity returns 1 - editDistance/maxLen over the normalized forms.
// Identical fingerprints score 1.0; two empty messages are identical.
func Similarity(a, b Fingerprint) float64 {
	if a.Hash == b.Hash && a.Norm == b.Norm {
		return 1.0
	}

	left := []rune(a.Norm)
	right := []rune(b.Norm)
	if len(left) > maxCompareRunes {
		left = left[:maxCompareRunes]
	}
	if len(right) > maxCompareRunes {
		right = right[:maxCompareRunes]
	}

	longest := len(left)
	if len(right) > longest {
		longest = len(right)
	}
	if longest == 0 {
		return 1.0
	}

	distance := levenshtein(left, right)
	return 1.0 - float64(distance)/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
