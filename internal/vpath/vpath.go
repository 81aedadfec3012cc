// Package vpath implements the purely syntactic chapter-path codec: turning
// a chapter of a physical audio file into a synthetic path segment that a
// client can address like any other file or folder, and back again. It
// never touches the filesystem.
package vpath

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// MaxSegmentSize is the maximum length, in bytes, of the final path segment
// produced by Encode.
const MaxSegmentSize = 255

const segmentDelim = "$$"

// Chapter describes one chapter of a physical audio file.
type Chapter struct {
	Num      int
	Title    string
	StartMS  int64
	EndMS    int64
}

// Span is a chapter's time extent within its physical file, recovered by Decode.
type Span struct {
	StartMS int64
	EndMS   int64
}

// Encode produces the display name and synthetic on-disk path for a chapter
// of filePath. When collapse is true the chapter segment is appended onto
// the file's own name (the file "becomes" the chapter); otherwise it is
// inserted as an additional path segment (the file "becomes" a folder
// containing one entry per chapter).
func Encode(filePath string, ch Chapter, collapse bool) (displayName, encodedPath string) {
	ext := path.Ext(filePath)
	dir := path.Dir(filePath)
	base := strings.TrimSuffix(path.Base(filePath), ext)

	sanitizedTitle := strings.ReplaceAll(ch.Title, "/", "-")
	namePrefix := fmt.Sprintf("%03d - ", ch.Num)
	spanSuffix := fmt.Sprintf("%s%d-%d%s%s", segmentDelim, ch.StartMS, ch.EndMS, segmentDelim, ext)

	budget := MaxSegmentSize - len(namePrefix) - len(spanSuffix)
	if collapse {
		// The file's own stem and a delimiter share the final segment too.
		budget -= len(base) + len(segmentDelim)
	}
	title := waistTruncate(sanitizedTitle, budget)

	displayName = namePrefix + title
	chapterSegment := displayName

	if collapse {
		encodedPath = path.Join(dir, base+segmentDelim+chapterSegment+spanSuffix)
	} else {
		encodedPath = path.Join(dir, base+ext, chapterSegment+spanSuffix)
	}
	return displayName, encodedPath
}

// waistTruncate trims s to fit within maxBytes, removing from the middle and
// inserting "..." so both the start and end of the original title survive.
// Truncation happens on rune boundaries; it is not full grapheme-cluster
// aware, which is an acceptable approximation for the rare pathological
// title long enough to need it.
func waistTruncate(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	const ellipsis = "..."
	if maxBytes <= len(ellipsis) {
		runes := []rune(s)
		if len(runes) > maxBytes {
			runes = runes[:maxBytes]
		}
		return string(runes)
	}

	runes := []rune(s)
	budget := maxBytes - len(ellipsis)
	head := budget / 2
	tail := budget - head

	for head+tail > 0 {
		candidate := string(runes[:head]) + ellipsis + string(runes[len(runes)-tail:])
		if len(candidate) <= maxBytes {
			return candidate
		}
		if head > tail {
			head--
		} else {
			tail--
		}
	}
	return ellipsis
}

// Decode splits a request path into the real on-disk path and, if the final
// segment encodes one, the chapter span within it. A malformed span
// tolerantly decodes to no span rather than an error.
func Decode(requestPath string) (realPath string, span *Span) {
	dir, last := path.Split(requestPath)
	parts := strings.Split(last, segmentDelim)

	switch len(parts) {
	case 1:
		return requestPath, nil
	case 2:
		// <folder>/<file> - the delimiter separated a folder-ized chapter
		// name from the original filename; no span was encoded here.
		return path.Join(dir, parts[0], parts[1]), nil
	case 3:
		// <display-name>$$<span>$$<ext> - the not-collapsed encoding, where
		// the directory prefix up to here already IS the real file path
		// (the file was turned into a folder of chapters).
		s := parseSpan(parts[1])
		return path.Clean(strings.TrimSuffix(dir, "/")), s
	case 4:
		// <stem>$$<display-name>$$<span>$$<ext> - the collapsed encoding,
		// where the file's own name was merged into the final segment.
		s := parseSpan(parts[2])
		return path.Join(path.Clean(strings.TrimSuffix(dir, "/")), parts[0]+parts[3]), s
	default:
		// Unrecognized shape: treat the whole thing as a literal path.
		return requestPath, nil
	}
}

// parseSpan parses a "<start>-<end>" span; any malformed input decodes to nil.
func parseSpan(s string) *Span {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return nil
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil
	}
	end, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil
	}
	return &Span{StartMS: start, EndMS: end}
}
