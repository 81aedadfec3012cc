package mp3

import (
	"bytes"
	"os"

	"github.com/listenupapp/castshelf/pkg/audiometa"
	"github.com/listenupapp/castshelf/pkg/audiometa/internal/binary"
)

// ExtractCover returns the raw bytes of the embedded cover image from the
// first ID3v2 APIC (attached picture) frame, if any.
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

	header := make([]byte, id3HeaderSize)
	if err := sr.ReadAt(header, 0, "ID3v2 header"); err != nil {
		return nil, err
	}
	if string(header[0:3]) != "ID3" {
		return nil, &audiometa.UnsupportedFormatError{Path: path, Reason: "no ID3v2 tag"}
	}

	majorVersion := header[3]
	tagSize := decodeSynchsafe(header[6:10])

	offset := int64(id3HeaderSize)
	end := int64(id3HeaderSize) + tagSize

	for offset < end {
		frameID := make([]byte, 4)
		if err := sr.ReadAt(frameID, offset, "ID3v2 frame id"); err != nil {
			break
		}
		if frameID[0] == 0 {
			break
		}

		sizeBuf := make([]byte, 4)
		if err := sr.ReadAt(sizeBuf, offset+4, "ID3v2 frame size"); err != nil {
			break
		}
		var frameSize int64
		if majorVersion >= 4 {
			frameSize = decodeSynchsafe(sizeBuf)
		} else {
			frameSize = int64(sizeBuf[0])<<24 | int64(sizeBuf[1])<<16 | int64(sizeBuf[2])<<8 | int64(sizeBuf[3])
		}
		if frameSize <= 0 || offset+10+frameSize > end {
			break
		}

		if string(frameID) == "APIC" {
			data := make([]byte, frameSize)
			if err := sr.ReadAt(data, offset+10, "APIC frame data"); err != nil {
				return nil, err
			}
			return decodeAPICFrame(data), nil
		}

		offset += 10 + frameSize
	}

	return nil, &audiometa.UnsupportedFormatError{Path: path, Reason: "no embedded cover image"}
}

// decodeAPICFrame extracts the image bytes from an APIC frame body:
// encoding byte, MIME type (null-terminated), picture type byte,
// description (null-terminated), then the raw image data.
func decodeAPICFrame(data []byte) []byte {
	if len(data) < 2 {
		return nil
	}
	rest := data[1:]

	mimeEnd := bytes.IndexByte(rest, 0)
	if mimeEnd < 0 || mimeEnd+1 >= len(rest) {
		return nil
	}
	rest = rest[mimeEnd+1:]

	if len(rest) < 2 {
		return nil
	}
	rest = rest[1:] // picture type byte

	descEnd := bytes.IndexByte(rest, 0)
	if descEnd < 0 {
		return nil
	}
	return rest[descEnd+1:]
}
