package m4a

import (
	"github.com/listenupapp/castshelf/pkg/audiometa"
	"github.com/listenupapp/castshelf/pkg/audiometa/internal/binary"
)

// Atom represents one MP4/QuickTime box: a 4-byte big-endian size, a 4-byte
// fourcc type, and its payload. Size includes the 8-byte header.
type Atom struct {
	Type   string
	Size   uint32
	Offset int64 // offset of the size field, i.e. the start of the atom
}

// DataOffset returns the offset of the atom's payload (after the header).
func (a *Atom) DataOffset() int64 {
	return a.Offset + 8
}

// DataSize returns the size of the atom's payload in bytes.
func (a *Atom) DataSize() uint32 {
	if a.Size < 8 {
		return 0
	}
	return a.Size - 8
}

// readAtomHeader reads the size+fourcc header of the atom starting at offset.
func readAtomHeader(sr *binary.SafeReader, offset int64) (*Atom, error) {
	size, err := binary.Read[uint32](sr, offset, "atom size")
	if err != nil {
		return nil, err
	}
	typeBytes := make([]byte, 4)
	if err := sr.ReadAt(typeBytes, offset+4, "atom type"); err != nil {
		return nil, err
	}
	if size < 8 {
		return nil, &audiometa.CorruptedFileError{Path: sr.Path(), Offset: offset, Reason: "atom size smaller than header"}
	}
	return &Atom{Type: string(typeBytes), Size: size, Offset: offset}, nil
}

// findAtom scans the direct children of [start, end) for the first atom of
// the given fourcc type. It does not recurse.
func findAtom(sr *binary.SafeReader, start, end int64, atomType string) (*Atom, error) {
	offset := start
	for offset < end {
		atom, err := readAtomHeader(sr, offset)
		if err != nil {
			return nil, err
		}
		if atom.Type == atomType {
			return atom, nil
		}
		offset += int64(atom.Size)
	}
	return nil, &audiometa.UnsupportedFormatError{Path: sr.Path(), Reason: "atom " + atomType + " not found"}
}
