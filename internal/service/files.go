package service

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/listenupapp/castshelf/internal/apperr"
	"github.com/listenupapp/castshelf/internal/streaming"
	"github.com/listenupapp/castshelf/internal/transcode"
	"github.com/listenupapp/castshelf/internal/vpath"
)

// FileBytesResult is the outcome of get-file-bytes: either a 200 full-file
// response (Range nil) or a 206 partial response.
type FileBytesResult struct {
	Stream io.ReadCloser
	Mime   string
	Size   int64
	Range  *streaming.Range // nil => serve the whole stream as a 200
}

// GetFileBytes implements the get-file-bytes operation. A chapter-addressed
// path (one that decodes to a non-nil vpath.Span) cannot be satisfied by
// slicing the physical file's raw bytes, since the cut is time-based, not
// byte-based; such requests are served by passthrough-transcoding (a remux,
// not a re-encode) instead, and never carry byte-range semantics.
func (s *Service) GetFileBytes(ctx context.Context, collectionID, filePath, rangeHeader string) (*FileBytesResult, error) {
	c, err := s.collection(collectionID)
	if err != nil {
		return nil, err
	}

	realPath, span := vpath.Decode(filePath)
	if span != nil {
		tr, err := s.GetTranscoded(ctx, collectionID, filePath, 0, "passthrough")
		if err != nil {
			return nil, err
		}
		return &FileBytesResult{Stream: tr.Stream, Mime: tr.Mime, Size: -1}, nil
	}

	full := filepath.Join(c.Root, realPath)
	info, err := os.Stat(full)
	if err != nil {
		return nil, apperr.NotFoundf("file not found: %s", realPath)
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, apperr.Internalf("open %s: %v", realPath, err)
	}

	size := info.Size()
	mime := transcode.GuessMime(full)

	r, ok := streaming.ParseRange(rangeHeader, size)
	if !ok {
		return &FileBytesResult{Stream: f, Mime: mime, Size: size}, nil
	}

	if _, err := f.Seek(r.Start, io.SeekStart); err != nil {
		f.Close()
		return nil, apperr.Internalf("seek %s: %v", realPath, err)
	}
	limited := &limitedFile{f: f, remaining: r.Length()}
	return &FileBytesResult{Stream: limited, Mime: mime, Size: size, Range: &r}, nil
}

// limitedFile wraps an *os.File so reads stop after a fixed number of bytes
// (the requested range), while Close still releases the descriptor.
type limitedFile struct {
	f         *os.File
	remaining int64
}

func (l *limitedFile) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.f.Read(p)
	l.remaining -= int64(n)
	return n, err
}

func (l *limitedFile) Close() error { return l.f.Close() }

// TranscodedResult is the outcome of get-transcoded: a stream in the
// profile's container, plus the codec/bitrate an HTTP layer can report in
// an X-Transcode header.
type TranscodedResult struct {
	Stream   io.ReadCloser
	Mime     string
	Codec    string
	BitrateK int
}

// GetTranscoded implements the get-transcoded operation: a cache hit is
// served directly; a miss is admission-gated, spawned through the
// transcoder, and (cache permitting) mirrored into the transcoding cache as
// it streams out.
func (s *Service) GetTranscoded(ctx context.Context, collectionID, filePath string, seekS float64, quality string) (*TranscodedResult, error) {
	c, err := s.collection(collectionID)
	if err != nil {
		return nil, err
	}
	if s.transcoder == nil {
		return nil, apperr.InvalidInput("transcoding is disabled")
	}
	profile, ok := s.profiles[quality]
	if !ok {
		return nil, apperr.InvalidInput("unknown transcode quality: " + quality)
	}

	realPath, span := vpath.Decode(filePath)
	full := filepath.Join(c.Root, realPath)

	info, err := os.Stat(full)
	if err != nil {
		return nil, apperr.NotFoundf("source file not found: %s", realPath)
	}
	mtime := info.ModTime()

	var tspan transcode.Span
	if span != nil {
		tspan = transcode.Span{StartS: float64(span.StartMS) / 1000, EndS: float64(span.EndMS) / 1000}
	}

	cacheKey := quality + ":" + filePath

	if !s.cacheDisabled {
		if r, err := s.cache.Get(cacheKey, mtime); err == nil {
			return &TranscodedResult{
				Stream:   r,
				Mime:     profileMime(profile, full),
				Codec:    profile.Codec,
				BitrateK: profile.BitrateK,
			}, nil
		}
	}

	release, err := s.admission.Admit()
	if err != nil {
		return nil, err
	}

	res, err := s.transcoder.Start(ctx, transcode.Request{
		Source:  transcode.Source{Path: full},
		SeekS:   seekS,
		Span:    tspan,
		Profile: profile,
	})
	if err != nil {
		release()
		return nil, err
	}

	tee := &transcodeCacheTee{src: res.Stream, done: res.Done, release: release, logger: s.logger}
	if !s.cacheDisabled {
		w, finisher, addErr := s.cache.Add(cacheKey, mtime)
		if addErr == nil {
			tee.cacheW = w
			tee.finisher = finisher
		} else if s.logger != nil {
			s.logger.Warn("transcode cache add failed, serving uncached", "key", cacheKey, "error", addErr)
		}
	}

	return &TranscodedResult{
		Stream:   tee,
		Mime:     res.Mime,
		Codec:    profile.Codec,
		BitrateK: profile.BitrateK,
	}, nil
}

func profileMime(p transcode.Profile, sourcePath string) string {
	if p.Codec == "" { // passthrough
		return transcode.GuessMime(sourcePath)
	}
	return p.Mime
}
