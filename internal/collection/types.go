// Package collection implements the embedded KV-backed collection index
// (C3): folder records keyed by relative path, plus the position and
// latest-folder-pointer trees that internal/position shares the same
// database with.
package collection

import "time"

// FileMeta carries per-file technical info, when probing is enabled.
type FileMeta struct {
	DurationS   uint32            `json:"duration_s"`
	BitrateKbps uint32            `json:"bitrate_kbps"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Section marks a file entry as a virtual chapter slice of a physical file.
type Section struct {
	StartMS    uint64  `json:"start_ms"`
	DurationMS *uint64 `json:"duration_ms,omitempty"`
}

// File is one audio-file entry within a folder record.
type File struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Mime    string    `json:"mime"`
	Meta    *FileMeta `json:"meta,omitempty"`
	Section *Section  `json:"section,omitempty"`
}

// Subfolder is one child-folder entry within a folder record.
type Subfolder struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	IsFile   bool       `json:"is_file"`
	Modified *time.Time `json:"modified,omitempty"`
	Finished bool       `json:"finished"`
}

// Asset points to an auxiliary file (cover image or description text)
// associated with a folder.
type Asset struct {
	Path string `json:"path"`
	Mime string `json:"mime"`
}

// Record is a folder record: the value stored per relative folder path.
type Record struct {
	Files        []File            `json:"files"`
	Subfolders   []Subfolder       `json:"subfolders"`
	Cover        *Asset            `json:"cover,omitempty"`
	Description  *Asset            `json:"description,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	IsFile       bool              `json:"is_file"`
	IsCollapsed  bool              `json:"is_collapsed"`
	Modified     time.Time         `json:"modified"`
	TotalTimeS   float64           `json:"total_time_s"`
}

// Ordering selects how a folder's subfolders are sorted.
type Ordering int

const (
	// Alphabetical orders subfolders by unicode collation of their name.
	Alphabetical Ordering = iota
	// RecentFirst orders subfolders by mtime descending, absent mtime last.
	RecentFirst
)
