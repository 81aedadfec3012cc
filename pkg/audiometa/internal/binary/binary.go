// Package binary provides bounds-checked big-endian reads over an io.ReaderAt,
// used by the M4A/MP3 container parsers to avoid panics on truncated or
// malformed audio files.
package binary

import (
	"encoding/binary"
	"io"

	"github.com/listenupapp/castshelf/pkg/audiometa"
)

// Unsigned is the set of integer widths Read supports.
type Unsigned interface {
	uint8 | uint16 | uint32 | uint64
}

// SafeReader wraps an io.ReaderAt with a known size, rejecting any read that
// would run past the end of the file instead of returning short reads.
type SafeReader struct {
	r    io.ReaderAt
	size int64
	path string
}

// NewSafeReader creates a SafeReader over r, which is size bytes long.
func NewSafeReader(r io.ReaderAt, size int64, path string) *SafeReader {
	return &SafeReader{r: r, size: size, path: path}
}

// Path returns the file path this reader was opened for, for error context.
func (sr *SafeReader) Path() string {
	return sr.path
}

// Size returns the total size of the underlying file.
func (sr *SafeReader) Size() int64 {
	return sr.size
}

// ReadAt fills buf from the given offset, failing with an OutOfBoundsError
// rather than a short read if the range exceeds the file's size.
func (sr *SafeReader) ReadAt(buf []byte, offset int64, what string) error {
	if offset < 0 || offset >= sr.size {
		return &audiometa.OutOfBoundsError{Path: sr.path, Offset: offset, Length: len(buf), Size: sr.size, What: what}
	}
	if offset+int64(len(buf)) > sr.size {
		return &audiometa.OutOfBoundsError{Path: sr.path, Offset: offset, Length: len(buf), Size: sr.size, What: what}
	}
	n, err := sr.r.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return err
	}
	if n != len(buf) {
		return &audiometa.OutOfBoundsError{Path: sr.path, Offset: offset, Length: len(buf), Size: sr.size, What: what}
	}
	return nil
}

// Read decodes a big-endian unsigned integer of type T at the given offset.
func Read[T Unsigned](sr *SafeReader, offset int64, what string) (T, error) {
	var zero T
	width := widthOf(zero)
	buf := make([]byte, width)
	if err := sr.ReadAt(buf, offset, what); err != nil {
		return zero, err
	}
	switch width {
	case 1:
		return T(buf[0]), nil
	case 2:
		return T(binary.BigEndian.Uint16(buf)), nil
	case 4:
		return T(binary.BigEndian.Uint32(buf)), nil
	default:
		return T(binary.BigEndian.Uint64(buf)), nil
	}
}

func widthOf(v any) int {
	switch v.(type) {
	case uint8:
		return 1
	case uint16:
		return 2
	case uint32:
		return 4
	default:
		return 8
	}
}
