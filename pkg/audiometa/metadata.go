package audiometa

import (
	"fmt"
	"time"
)

// Chapter represents a single chapter marker extracted from a container's
// native chapter atom (M4B chpl) or synthesized from multi-file grouping.
type Chapter struct {
	Index     int
	Title     string
	StartTime time.Duration
	EndTime   time.Duration
}

// Metadata represents audio file metadata.
type Metadata struct {
	// Basic info
	Title    string
	Artist   string
	Album    string
	Year     int
	Genre    string
	Composer string
	Comment  string

	// Audiobook-specific info
	Narrator   string
	Series     string
	SeriesPart string
	Publisher  string
	ISBN       string
	ASIN       string

	// Track info
	TrackNumber int
	TrackTotal  int
	DiscNumber  int
	DiscTotal   int

	// Technical info
	Duration   time.Duration // Total duration
	BitRate    int           // Bits per second
	SampleRate int           // Samples per second
	Channels   int           // Number of audio channels
	Codec      string        // Audio codec (e.g., "AAC", "ALAC")

	// Chapters, if the container carries native chapter markers.
	Chapters []Chapter

	// File info
	FileSize int64  // File size in bytes
	Format   Format // Detected format (M4B, M4A, MP3)

	// Warnings accumulated during lenient parsing; parsing never fails just
	// because a secondary tag was malformed.
	Warnings []string
}

// AddWarning appends a formatted warning to the metadata's warning list.
func (m *Metadata) AddWarning(format string, args ...any) {
	m.Warnings = append(m.Warnings, fmt.Sprintf(format, args...))
}

// HasChapters reports whether the container carried native chapter markers.
func (m *Metadata) HasChapters() bool {
	return len(m.Chapters) > 0
}
