package m4a

import (
	"os"

	"github.com/listenupapp/castshelf/pkg/audiometa"
	"github.com/listenupapp/castshelf/pkg/audiometa/internal/binary"
)

// ExtractCover returns the raw bytes of the embedded cover image (the
// "covr" iTunes metadata atom), if any.
func ExtractCover(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	sr := binary.NewSafeReader(file, stat.Size(), path)

	moovAtom, err := findAtom(sr, 0, stat.Size(), "moov")
	if err != nil {
		return nil, err
	}
	udtaAtom, err := findAtom(sr, moovAtom.DataOffset(), moovAtom.DataOffset()+int64(moovAtom.DataSize()), "udta")
	if err != nil {
		return nil, err
	}
	metaAtom, err := findAtom(sr, udtaAtom.DataOffset(), udtaAtom.DataOffset()+int64(udtaAtom.DataSize()), "meta")
	if err != nil {
		return nil, err
	}
	// The "meta" atom carries 4 bytes of version+flags before its children.
	ilstAtom, err := findAtom(sr, metaAtom.DataOffset()+4, metaAtom.DataOffset()+int64(metaAtom.DataSize()), "ilst")
	if err != nil {
		return nil, err
	}
	covrAtom, err := findAtom(sr, ilstAtom.DataOffset(), ilstAtom.DataOffset()+int64(ilstAtom.DataSize()), "covr")
	if err != nil {
		return nil, err
	}
	dataAtom, err := findAtom(sr, covrAtom.DataOffset(), covrAtom.DataOffset()+int64(covrAtom.DataSize()), "data")
	if err != nil {
		return nil, err
	}

	valueOffset := dataAtom.DataOffset() + 8
	valueSize := int64(dataAtom.DataSize()) - 8
	if valueSize <= 0 {
		return nil, &audiometa.UnsupportedFormatError{Path: path, Reason: "empty cover atom"}
	}

	buf := make([]byte, valueSize)
	if err := sr.ReadAt(buf, valueOffset, "cover image data"); err != nil {
		return nil, err
	}
	return buf, nil
}
