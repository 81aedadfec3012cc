// Package transcode implements the transcoder (C7): it spawns ffmpeg once
// per request to transcode or remux a slice of an audio file, enforces a
// runtime deadline, and exposes the result as a plain byte stream plus a
// completion signal. It does not queue or persist jobs; persistent caching
// of the output is internal/cache's job, and admission gating before a
// request reaches here is internal/admission's.
package transcode

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/listenupapp/castshelf/internal/apperr"
	"github.com/listenupapp/castshelf/internal/streaming"
)

// Profile selects an output format and bitrate. Passthrough remuxes without
// re-encoding (stream copy).
type Profile struct {
	Name      string
	Codec     string // ffmpeg codec name, ignored for passthrough
	BitrateK  int    // ignored for passthrough
	Container string // ffmpeg -f format name
	Mime      string // fixed mime, except passthrough (guessed from input extension)
}

var (
	ProfileLow         = Profile{Name: "low", Codec: "aac", BitrateK: 32, Container: "adts", Mime: "audio/aac"}
	ProfileMedium      = Profile{Name: "medium", Codec: "aac", BitrateK: 64, Container: "adts", Mime: "audio/aac"}
	ProfileHigh        = Profile{Name: "high", Codec: "aac", BitrateK: 128, Container: "adts", Mime: "audio/aac"}
	ProfilePassthrough = Profile{Name: "passthrough", Container: "adts"}
)

func (p Profile) isPassthrough() bool { return p.Codec == "" }

// Source identifies the input ffmpeg reads. Transcoded marks an
// already-cached artifact being sliced/remuxed rather than the original file.
type Source struct {
	Path       string
	Transcoded bool
}

// Span bounds the slice of Source to transcode, in seconds. EndS of zero
// means "to the end of the file".
type Span struct {
	StartS float64
	EndS   float64
}

// Request describes one transcode/remux operation.
type Request struct {
	Source  Source
	SeekS   float64
	Span    Span
	Profile Profile
}

// Result is a running transcode: Stream yields the encoded bytes as ffmpeg
// produces them; Done resolves exactly once, when the subprocess exits (by
// completion, deadline, or cancellation).
type Result struct {
	Stream io.ReadCloser
	Mime   string
	Done   <-chan error
}

// ErrDeadlineExceeded is sent on Result.Done when the subprocess is killed
// for running past MaxRuntime.
var ErrDeadlineExceeded = fmt.Errorf("transcode exceeded max runtime")

// Transcoder spawns ffmpeg per request.
type Transcoder struct {
	FFmpegPath string
	MaxRuntime time.Duration
}

// New builds a Transcoder. ffmpegPath may be empty to use "ffmpeg" from PATH.
func New(ffmpegPath string, maxRuntime time.Duration) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Transcoder{FFmpegPath: ffmpegPath, MaxRuntime: maxRuntime}
}

// Start spawns ffmpeg for req. The subprocess has stdin=null, stdout=pipe
// (wrapped in a streaming.ChunkStream as Result.Stream), and inherited stderr. Dropping Result.Stream
// without reading it to EOF causes ffmpeg's next write to the closed pipe to
// fail with SIGPIPE, ending the process; callers rely on this for
// cancellation-on-drop rather than an explicit cancel method.
func (t *Transcoder) Start(ctx context.Context, req Request) (*Result, error) {
	args := buildArgs(req)

	cmd := exec.CommandContext(ctx, t.FFmpegPath, args...) //#nosec G204 -- ffmpegPath is operator configuration, not request input
	cmd.Stdin = nil
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperr.Internalf("create ffmpeg stdout pipe: %v", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, apperr.Internalf("start ffmpeg: %v", err)
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	resultDone := make(chan error, 1)
	go t.raceDeadline(ctx, cmd, waitDone, resultDone)

	mime := req.Profile.Mime
	if req.Profile.isPassthrough() {
		mime = GuessMime(req.Source.Path)
	}

	return &Result{Stream: streaming.NewChunkStream(stdout, -1), Mime: mime, Done: resultDone}, nil
}

// raceDeadline races the subprocess's natural exit against MaxRuntime and
// ctx cancellation, killing the process on whichever loses.
func (t *Transcoder) raceDeadline(ctx context.Context, cmd *exec.Cmd, waitDone chan error, resultDone chan error) {
	var timeout <-chan time.Time
	if t.MaxRuntime > 0 {
		timer := time.NewTimer(t.MaxRuntime)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-waitDone:
		resultDone <- err
	case <-timeout:
		_ = cmd.Process.Kill()
		<-waitDone
		resultDone <- ErrDeadlineExceeded
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitDone
		resultDone <- ctx.Err()
	}
}

// buildArgs constructs the ffmpeg argument list per the command-construction
// contract: seek to span-start+seek, optionally bound duration, strip
// metadata, audio-only, then either stream-copy or codec-specific encode
// args, writing the chosen container to stdout.
func buildArgs(req Request) []string {
	start := req.Span.StartS + req.SeekS

	args := []string{"-ss", formatSeconds(start)}

	if req.Span.EndS > 0 {
		duration := req.Span.EndS - start
		if duration < 0 {
			duration = 0
		}
		args = append(args, "-t", formatSeconds(duration))
	}

	args = append(args, "-i", req.Source.Path, "-map_metadata", "-1", "-vn")

	if req.Profile.isPassthrough() {
		args = append(args, "-c", "copy")
	} else {
		args = append(args,
			"-c:a", req.Profile.Codec,
			"-b:a", strconv.Itoa(req.Profile.BitrateK)+"k",
		)
	}

	args = append(args, "-f", req.Profile.Container, "pipe:1")
	return args
}

func formatSeconds(s float64) string {
	if s < 0 {
		s = 0
	}
	return strconv.FormatFloat(s, 'f', 3, 64)
}

var mimeByExt = map[string]string{
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

// GuessMime maps a source file's extension to a mime type, falling back to
// a generic container type when the extension is unrecognized. Exported so
// internal/service can label raw (non-transcoded) file reads consistently.
func GuessMime(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if m, ok := mimeByExt[ext]; ok {
		return m
	}
	return "application/octet-stream"
}
