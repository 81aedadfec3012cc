package streaming

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Range is an inclusive, fully-resolved byte range against a known size.
type Range struct {
	Start int64
	End   int64 // inclusive
}

// Length is the number of bytes the range covers.
func (r Range) Length() int64 { return r.End - r.Start + 1 }

// ContentRange formats the Content-Range response header value for a
// response of total size size.
func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

var rangeHeaderPattern = regexp.MustCompile(`^bytes=(\d*)-(\d*)$`)

// ParseRange parses a single-range "Range" header (forms a-b, a-, -n) against
// size and resolves it to a concrete, satisfiable Range. It returns
// ok=false whenever the header is absent, malformed, multi-range, or
// unsatisfiable against size — callers are expected to fall back to a full
// 200 response in every ok=false case, per the lenient byte-range contract.
func ParseRange(header string, size int64) (Range, bool) {
	if header == "" || size <= 0 {
		return Range{}, false
	}
	m := rangeHeaderPattern.FindStringSubmatch(strings.TrimSpace(header))
	if m == nil {
		return Range{}, false
	}
	startStr, endStr := m[1], m[2]

	var start, end int64
	switch {
	case startStr == "" && endStr == "":
		return Range{}, false
	case startStr == "":
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return Range{}, false
		}
		if n > size {
			n = size
		}
		start = size - n
		end = size - 1
	case endStr == "":
		s, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return Range{}, false
		}
		start = s
		end = size - 1
	default:
		s, err1 := strconv.ParseInt(startStr, 10, 64)
		e, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil {
			return Range{}, false
		}
		start, end = s, e
		if end > size-1 {
			end = size - 1
		}
	}

	if start < 0 || start >= size || start > end {
		return Range{}, false
	}
	return Range{Start: start, End: end}, true
}
