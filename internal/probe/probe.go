// Package probe extracts duration, bitrate, tags, chapters, and embedded
// cover/description data from an audio file, preferring the in-process
// container parsers and falling back to ffprobe for anything they can't
// read (FLAC, Opus, Ogg, WMA, WAV and other containers audiobook libraries
// occasionally contain alongside M4B/M4A/MP3).
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/listenupapp/castshelf/pkg/audiometa"
	"github.com/listenupapp/castshelf/pkg/audiometa/m4a"
	"github.com/listenupapp/castshelf/pkg/audiometa/mp3"
)

// Chapter is a single chapter marker, in milliseconds.
type Chapter struct {
	N        int
	Title    string
	StartMS  int64
	EndMS    int64
}

// Result is the outcome of probing one audio file.
type Result struct {
	DurationMS    int64
	BitrateKbps   int
	Tags          map[string]string
	Chapters      []Chapter
	HasCover      bool
	HasDescription bool

	path   string
	format audiometa.Format
}

// Error wraps a failure to probe a file, per the contract's `ProbeError`.
type Error struct {
	Path   string
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("probe %s: %s: %v", e.Path, e.Reason, e.Cause)
	}
	return fmt.Sprintf("probe %s: %s", e.Path, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// Prober extracts metadata from audio files.
type Prober struct {
	// FFprobePath overrides auto-detection of the ffprobe binary location.
	FFprobePath string
}

// New creates a Prober using the default ffprobe lookup ("ffprobe" on PATH).
func New() *Prober {
	return &Prober{FFprobePath: "ffprobe"}
}

// Probe extracts metadata from the audio file at path. path must be valid
// UTF-8; containers this package cannot parse natively fall back to ffprobe.
func (p *Prober) Probe(ctx context.Context, path string) (*Result, error) {
	if !isValidUTF8Path(path) {
		return nil, &Error{Path: path, Reason: "path is not valid UTF-8"}
	}

	meta, format, nativeErr := p.probeNative(path)
	if nativeErr == nil {
		return resultFromMetadata(path, format, meta), nil
	}

	res, err := p.probeFFprobe(ctx, path)
	if err != nil {
		return nil, &Error{Path: path, Reason: "container unreadable", Cause: err}
	}
	return res, nil
}

// probeNative tries the in-process M4A/MP3 parsers. It returns an error for
// any container those parsers don't understand, including simply not being
// able to detect a format.
func (p *Prober) probeNative(path string) (*audiometa.Metadata, audiometa.Format, error) {
	lowered := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lowered, ".m4b") || strings.HasSuffix(lowered, ".m4a"):
		meta, err := m4a.Parse(path)
		if err != nil {
			return nil, audiometa.FormatUnknown, err
		}
		return meta, meta.Format, nil
	case strings.HasSuffix(lowered, ".mp3"):
		meta, err := mp3.Parse(path)
		if err != nil {
			return nil, audiometa.FormatUnknown, err
		}
		return meta, meta.Format, nil
	default:
		return nil, audiometa.FormatUnknown, fmt.Errorf("unsupported extension for native parsing: %s", path)
	}
}

func resultFromMetadata(path string, format audiometa.Format, meta *audiometa.Metadata) *Result {
	tags := map[string]string{}
	putTag(tags, "title", meta.Title)
	putTag(tags, "artist", meta.Artist)
	putTag(tags, "album", meta.Album)
	putTag(tags, "genre", meta.Genre)
	putTag(tags, "composer", meta.Composer)
	putTag(tags, "comment", meta.Comment)
	putTag(tags, "narrator", meta.Narrator)
	putTag(tags, "series", meta.Series)
	putTag(tags, "series-part", meta.SeriesPart)
	putTag(tags, "publisher", meta.Publisher)
	putTag(tags, "isbn", meta.ISBN)
	putTag(tags, "asin", meta.ASIN)
	if meta.Year != 0 {
		tags["year"] = strconv.Itoa(meta.Year)
	}

	chapters := make([]Chapter, 0, len(meta.Chapters))
	for _, c := range meta.Chapters {
		chapters = append(chapters, Chapter{
			N:       c.Index,
			Title:   c.Title,
			StartMS: c.StartTime.Milliseconds(),
			EndMS:   c.EndTime.Milliseconds(),
		})
	}

	return &Result{
		DurationMS:     meta.Duration.Milliseconds(),
		BitrateKbps:    meta.BitRate / 1000,
		Tags:           tags,
		Chapters:       chapters,
		HasDescription: meta.Comment != "",
		HasCover:       format == audiometa.FormatM4B || format == audiometa.FormatM4A || format == audiometa.FormatMP3,
		path:           path,
		format:         format,
	}
}

func putTag(tags map[string]string, key, value string) {
	if value != "" {
		tags[key] = value
	}
}

// ExtractCover returns the embedded cover image's raw bytes, or nil if none exists.
func (r *Result) ExtractCover() ([]byte, error) {
	if !r.HasCover {
		return nil, nil
	}
	switch r.format {
	case audiometa.FormatM4B, audiometa.FormatM4A:
		return m4a.ExtractCover(r.path)
	case audiometa.FormatMP3:
		return mp3.ExtractCover(r.path)
	default:
		return nil, nil
	}
}

// ExtractDescription returns the long-form description/comment tag as bytes,
// or nil if none exists.
func (r *Result) ExtractDescription() ([]byte, error) {
	if !r.HasDescription {
		return nil, nil
	}
	if desc := r.Tags["comment"]; desc != "" {
		return []byte(desc), nil
	}
	return []byte(r.Tags["description"]), nil
}

func isValidUTF8Path(path string) bool {
	for i := 0; i < len(path); {
		r := path[i]
		if r < 0x80 {
			i++
			continue
		}
		size := utf8SequenceLen(r)
		if size == 0 || i+size > len(path) {
			return false
		}
		i += size
	}
	return true
}

func utf8SequenceLen(b byte) int {
	switch {
	case b&0xE0 == 0xC0:
		return 2
	case b&0xF0 == 0xE0:
		return 3
	case b&0xF8 == 0xF0:
		return 4
	default:
		return 0
	}
}

// probeFFprobe shells out to ffprobe for containers the native parsers
// don't support, mirroring the scanner's original ffprobe integration.
func (p *Prober) probeFFprobe(ctx context.Context, path string) (*Result, error) {
	bin := p.FFprobePath
	if bin == "" {
		bin = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_chapters",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var data ffprobeOutput
	if err := json.Unmarshal(output, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	res := &Result{Tags: map[string]string{}, path: path}

	if data.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(data.Format.Duration, 64); err == nil {
			res.DurationMS = time.Duration(dur * float64(time.Second)).Milliseconds()
		}
	}
	if data.Format.BitRate != "" {
		if br, err := strconv.Atoi(data.Format.BitRate); err == nil {
			res.BitrateKbps = br / 1000
		}
	}
	for k, v := range data.Format.Tags {
		if v != "" {
			res.Tags[strings.ToLower(k)] = v
		}
	}
	if desc := res.Tags["comment"]; desc != "" {
		res.HasDescription = true
	} else if desc := res.Tags["description"]; desc != "" {
		res.HasDescription = true
	}

	for _, stream := range data.Streams {
		if stream.CodecType == "video" {
			res.HasCover = true
		}
	}

	for _, ch := range data.Chapters {
		chapter := Chapter{N: ch.ID}
		if ch.StartTime != "" {
			if start, err := strconv.ParseFloat(ch.StartTime, 64); err == nil {
				chapter.StartMS = time.Duration(start * float64(time.Second)).Milliseconds()
			}
		}
		if ch.EndTime != "" {
			if end, err := strconv.ParseFloat(ch.EndTime, 64); err == nil {
				chapter.EndMS = time.Duration(end * float64(time.Second)).Milliseconds()
			}
		}
		if ch.Tags != nil {
			chapter.Title = ch.Tags["title"]
		}
		res.Chapters = append(res.Chapters, chapter)
	}

	return res, nil
}

type ffprobeOutput struct {
	Format   ffprobeFormat    `json:"format"`
	Streams  []ffprobeStream  `json:"streams"`
	Chapters []ffprobeChapter `json:"chapters"`
}

type ffprobeFormat struct {
	Tags     map[string]string `json:"tags"`
	Duration string            `json:"duration"`
	BitRate  string            `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
}

type ffprobeChapter struct {
	Tags      map[string]string `json:"tags"`
	StartTime string            `json:"start_time"`
	EndTime   string            `json:"end_time"`
	ID        int               `json:"id"`
}
