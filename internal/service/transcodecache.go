package service

import (
	"io"
	"log/slog"

	"github.com/listenupapp/castshelf/internal/admission"
	"github.com/listenupapp/castshelf/internal/cache"
)

// transcodeCacheTee wraps a transcoder's stdout stream, mirroring every byte
// read into the transcoding cache's in-flight writer. Close waits for the
// subprocess's completion future and commits the cache entry on a clean
// exit, or rolls it back otherwise; either way it releases the admission
// slot exactly once.
type transcodeCacheTee struct {
	src      io.ReadCloser
	cacheW   io.WriteCloser
	finisher *cache.Finisher
	done     <-chan error
	release  admission.Release
	logger   *slog.Logger
}

func (t *transcodeCacheTee) Read(p []byte) (int, error) {
	n, err := t.src.Read(p)
	if n > 0 && t.cacheW != nil {
		if _, werr := t.cacheW.Write(p[:n]); werr != nil {
			if t.logger != nil {
				t.logger.Warn("transcode cache write failed, abandoning cache entry", "error", werr)
			}
			t.cacheW = nil
			if t.finisher != nil {
				_ = t.finisher.Rollback()
				t.finisher = nil
			}
		}
	}
	return n, err
}

// Close closes the source stream (triggering SIGPIPE cancellation in the
// subprocess if it hasn't exited yet), then blocks for the completion
// future to settle so it can decide whether to commit or roll back the
// cache entry, and finally releases the admission slot.
func (t *transcodeCacheTee) Close() error {
	closeErr := t.src.Close()

	var procErr error
	if t.done != nil {
		procErr = <-t.done
	}
	if t.release != nil {
		t.release()
	}

	if t.finisher == nil {
		return closeErr
	}
	if procErr != nil {
		_ = t.finisher.Rollback()
		return closeErr
	}
	if err := t.finisher.Commit(); err != nil && t.logger != nil {
		t.logger.Warn("transcode cache commit failed", "error", err)
	}
	return closeErr
}
