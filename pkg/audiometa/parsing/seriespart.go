// Package parsing provides small heuristics for recovering audiobook series
// position information that isn't carried in a dedicated tag.
package parsing

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	// "Book 3", "Part 3", "#3", "Vol. 3", "Volume 3"
	seriesPartPattern = regexp.MustCompile(`(?i)(?:book|part|vol(?:ume)?|#)\.?\s*(\d+(?:\.\d+)?)`)
	// A bare ", 3" or " - 3" trailing a title.
	trailingNumberPattern = regexp.MustCompile(`(?:,|-)\s*(\d+(?:\.\d+)?)\s*$`)
	// A leading "2 - " on a directory name, e.g. "2 - North or Be Eaten".
	leadingNumberPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*-\s`)
)

// IsLikelySeriesPosition reports whether a track/track-total pair looks like
// it was actually encoding a series position (a lone track number, or a
// track total of at most 20, a plausible book count) rather than a genuine
// multi-track album.
func IsLikelySeriesPosition(track, total int) bool {
	if track <= 0 {
		return false
	}
	if total == 0 {
		// No total at all - a lone track number on an audiobook is usually
		// its series position, not a CD track.
		return true
	}
	return total <= 20
}

// ExtractSeriesPartFromText looks for a series-position hint inside a title
// or album string, e.g. "Mistborn Book 2" or "Mistborn, 2".
func ExtractSeriesPartFromText(s string) string {
	if m := seriesPartPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := trailingNumberPattern.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
		return m[1]
	}
	return ""
}

// ExtractSeriesPartFromPath looks for a series-position hint in the
// directory structure leading to the file, e.g. ".../Mistborn/Book 2/..." or
// ".../Mistborn/2 - The Well of Ascension/...".
func ExtractSeriesPartFromPath(path string) string {
	dir := filepath.Dir(path)
	for dir != "." && dir != string(filepath.Separator) {
		base := filepath.Base(dir)
		if part := ExtractSeriesPartFromText(base); part != "" {
			if _, err := strconv.ParseFloat(part, 64); err == nil {
				return part
			}
		}
		if m := leadingNumberPattern.FindStringSubmatch(base); m != nil {
			return m[1]
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
