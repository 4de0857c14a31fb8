package anomaly

import (
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
)

// company-form suffixes dropped before comparing names, longest first
var supplierSuffixes = []string{
	"pty ltd", "pty limited", "proprietary limited", "limited", "ltd",
	"incorporated", "inc", "llc", "corporation", "corp", "company", "co", "plc", "gmbh",
}

// NormalizeSupplier lowercases, strips punctuation and company-form suffixes.
func NormalizeSupplier(name string) string {
	s := foldName(name)
	for changed := true; changed; {
		changed = false
		for _, suf := range supplierSuffixes {
			if s != suf && strings.HasSuffix(s, " "+suf) {
				s = strings.TrimSpace(strings.TrimSuffix(s, suf))
				changed = true
			}
		}
	}
	return s
}

// foldName lowercases name, turns punctuation into spaces and collapses whitespace.
// Company-form suffixes are kept.
func foldName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '&':
			b.WriteString(" and ")
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Similarity is the normalized Levenshtein similarity (1 = equal) of two normalized names.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	return levenshtein.Similarity(a, b, nil)
}
