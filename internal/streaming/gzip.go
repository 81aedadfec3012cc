package streaming

import (
	"compress/gzip"
	"io"
	"sync/atomic"
)

// GzipState names where a GzipStream is in its lifecycle.
type GzipState int32

const (
	GzipReading GzipState = iota
	GzipDumping
	GzipCrc
	GzipDone
)

// GzipStream pipelines src through an incremental gzip encoder: it reads
// src in ChunkSize bursts, feeds each to a gzip.Writer, and makes the
// compressed bytes available to Read as they're produced. The encoder's
// trailing CRC32-and-length footer is written exactly once, when src is
// exhausted, via gzip.Writer.Close.
type GzipStream struct {
	pr    *io.PipeReader
	state atomic.Int32
}

// NewGzipStream starts encoding src in a background goroutine and returns a
// reader for the compressed output.
func NewGzipStream(src io.Reader) *GzipStream {
	pr, pw := io.Pipe()
	g := &GzipStream{pr: pr}
	g.state.Store(int32(GzipReading))
	go g.run(src, pw)
	return g
}

func (g *GzipStream) run(src io.Reader, pw *io.PipeWriter) {
	gw := gzip.NewWriter(pw)
	buf := make([]byte, ChunkSize)

	for {
		n, err := src.Read(buf)
		if n > 0 {
			g.state.Store(int32(GzipDumping))
			if _, werr := gw.Write(buf[:n]); werr != nil {
				_ = pw.CloseWithError(werr)
				return
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
	}

	g.state.Store(int32(GzipCrc))
	if err := gw.Close(); err != nil {
		_ = pw.CloseWithError(err)
		return
	}
	g.state.Store(int32(GzipDone))
	_ = pw.Close()
}

func (g *GzipStream) Read(p []byte) (int, error) { return g.pr.Read(p) }

// Close aborts encoding early, as on client disconnect.
func (g *GzipStream) Close() error { return g.pr.Close() }

// State reports the stream's current lifecycle state, for diagnostics and
// tests.
func (g *GzipStream) State() GzipState { return GzipState(g.state.Load()) }
