package folder

import (
	"path/filepath"
	"regexp"
	"strings"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".m4b":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
	".aac":  true,
	".wma":  true,
	".wav":  true,
}

var coverMimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

var descriptionMimeByExt = map[string]string{
	".txt":  "text/plain",
	".html": "text/html",
	".htm":  "text/html",
	".md":   "text/markdown",
}

var audioMimeByExt = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".m4b":  "audio/mp4",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".aac":  "audio/aac",
	".wma":  "audio/x-ms-wma",
	".wav":  "audio/wav",
}

// isAudioExt reports whether ext (as returned by filepath.Ext, lowercased)
// names an audio container this system serves.
func isAudioExt(ext string) bool {
	return audioExtensions[strings.ToLower(ext)]
}

func audioMime(ext string) string {
	if m, ok := audioMimeByExt[strings.ToLower(ext)]; ok {
		return m
	}
	return "application/octet-stream"
}

// firstOK reports the boolean half of a (string, bool) pair, letting the two
// cover/description predicate calls read as simple conditions.
func firstOK(_ string, ok bool) bool { return ok }

func coverMime(ext string) (string, bool) {
	m, ok := coverMimeByExt[strings.ToLower(ext)]
	return m, ok
}

func descriptionMime(ext string) (string, bool) {
	m, ok := descriptionMimeByExt[strings.ToLower(ext)]
	return m, ok
}

func isPlaylistExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".m3u", ".m3u8":
		return true
	}
	return false
}

// isDiscDir reports whether a directory name indicates a disc/CD directory,
// e.g. "CD1", "Disc 2", "disk01".
func isDiscDir(name string) bool {
	name = strings.ToLower(name)
	for _, pattern := range []string{"cd", "disc", "disk"} {
		if !strings.HasPrefix(name, pattern) {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(name, pattern))
		if len(rest) > 0 && rest[0] >= '0' && rest[0] <= '9' {
			return true
		}
	}
	return false
}

// matchesCDPattern reports whether name matches the configured CD-folder
// regex, used instead of the built-in isDiscDir heuristic when an explicit
// pattern is configured; with no pattern, the heuristic alone decides.
func matchesCDPattern(pattern *regexp.Regexp, name string) bool {
	if pattern == nil {
		return isDiscDir(name)
	}
	return pattern.MatchString(name)
}

// waistTruncateName keeps a final path segment within maxBytes, trimming the
// middle of the name (not the extension) when necessary.
func waistTruncateName(name string, maxBytes int) string {
	if len(name) <= maxBytes {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	const ellipsis = "..."
	budget := maxBytes - len(ext) - len(ellipsis)
	if budget <= 0 {
		return name[:maxBytes]
	}
	head := budget / 2
	tail := budget - head
	runes := []rune(stem)
	if len(runes) <= head+tail {
		return name
	}
	return string(runes[:head]) + ellipsis + string(runes[len(runes)-tail:]) + ext
}
