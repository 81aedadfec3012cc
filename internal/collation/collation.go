// Package collation provides locale-aware name ordering for folder listings,
// plus an optional natural (numeric-aware) variant for filenames like
// "Track 2" sorting before "Track 10".
package collation

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Comparator orders display names the way a folder listing should.
type Comparator struct {
	col     *collate.Collator
	natural bool
}

// New builds a Comparator using the given locale for collation. natural
// enables numeric-aware comparison on top of the locale ordering.
func New(locale language.Tag, natural bool) *Comparator {
	return &Comparator{col: collate.New(locale), natural: natural}
}

// Default builds a Comparator using American English collation, the
// teacher's long-standing default locale for untagged libraries.
func Default(natural bool) *Comparator {
	return New(language.AmericanEnglish, natural)
}

// Compare returns <0, 0, >0 as a sorts before, equals, or sorts after b.
func (c *Comparator) Compare(a, b string) int {
	if c.natural {
		if cmp := compareNatural(a, b); cmp != 0 {
			return cmp
		}
	}
	return c.col.CompareString(a, b)
}

// Less reports whether a should sort before b, for use with sort.Slice.
func (c *Comparator) Less(a, b string) bool {
	return c.Compare(a, b) < 0
}

var numberRun = regexp.MustCompile(`\d+`)

// compareNatural splits both strings into alternating non-digit/digit runs
// and compares digit runs numerically, so "track2" sorts before "track10".
// Returns 0 if the numeric-run structure doesn't distinguish the inputs,
// leaving the decision to locale collation.
func compareNatural(a, b string) int {
	aParts := splitRuns(a)
	bParts := splitRuns(b)

	for i := 0; i < len(aParts) && i < len(bParts); i++ {
		ap, bp := aParts[i], bParts[i]
		an, aErr := strconv.Atoi(ap)
		bn, bErr := strconv.Atoi(bp)
		if aErr == nil && bErr == nil {
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
			continue
		}
		if ap != bp {
			return 0 // let collation decide non-numeric differences
		}
	}
	return 0
}

// splitRuns splits s into alternating runs of digits and non-digits.
func splitRuns(s string) []string {
	var parts []string
	matches := numberRun.FindAllStringIndex(s, -1)
	last := 0
	for _, m := range matches {
		if m[0] > last {
			parts = append(parts, s[last:m[0]])
		}
		parts = append(parts, s[m[0]:m[1]])
		last = m[1]
	}
	if last < len(s) {
		parts = append(parts, s[last:])
	}
	return parts
}

// FoldForSearch lowercases s for case-insensitive token search, matching the
// simple ASCII-oriented folding the collection index's search scan uses.
func FoldForSearch(s string) string {
	return strings.ToLower(s)
}
