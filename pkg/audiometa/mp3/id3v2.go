package mp3

import (
	"strconv"
	"strings"

	"github.com/listenupapp/castshelf/pkg/audiometa"
	"github.com/listenupapp/castshelf/pkg/audiometa/internal/binary"
)

// id3HeaderSize is the fixed 10-byte ID3v2 tag header.
const id3HeaderSize = 10

// parseID3v2 reads an ID3v2.3/2.4 tag at the start of the file and populates
// meta from its frames. It returns the total on-disk size of the tag
// (header + frames, padding included) so the caller can skip past it when
// looking for the first MPEG audio frame.
func parseID3v2(sr *binary.SafeReader, meta *audiometa.Metadata) (int64, error) {
	header := make([]byte, id3HeaderSize)
	if err := sr.ReadAt(header, 0, "ID3v2 header"); err != nil {
		return 0, err
	}

	if string(header[0:3]) != "ID3" {
		return 0, &audiometa.UnsupportedFormatError{Path: sr.Path(), Reason: "no ID3v2 tag"}
	}

	majorVersion := header[3]
	flags := header[5]
	tagSize := decodeSynchsafe(header[6:10])

	if flags&0x10 != 0 {
		// Footer present, adds another 10 bytes we must skip over too.
		tagSize += id3HeaderSize
	}

	offset := int64(id3HeaderSize)
	end := int64(id3HeaderSize) + tagSize

	for offset < end {
		frameID := make([]byte, 4)
		if err := sr.ReadAt(frameID, offset, "ID3v2 frame id"); err != nil {
			break
		}
		if frameID[0] == 0 {
			// Hit padding.
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

		dataBuf := make([]byte, frameSize)
		if err := sr.ReadAt(dataBuf, offset+10, "ID3v2 frame data"); err == nil {
			applyID3Frame(string(frameID), dataBuf, meta)
		}

		offset += 10 + frameSize
	}

	return int64(id3HeaderSize) + tagSize, nil
}

func decodeSynchsafe(b []byte) int64 {
	return int64(b[0]&0x7F)<<21 | int64(b[1]&0x7F)<<14 | int64(b[2]&0x7F)<<7 | int64(b[3]&0x7F)
}

// applyID3Frame maps a single decoded ID3v2 frame onto the metadata struct.
func applyID3Frame(id string, data []byte, meta *audiometa.Metadata) {
	switch id {
	case "TIT2":
		meta.Title = decodeTextFrame(data)
	case "TPE1":
		meta.Artist = decodeTextFrame(data)
	case "TALB":
		meta.Album = decodeTextFrame(data)
	case "TCON":
		meta.Genre = decodeTextFrame(data)
	case "TCOM":
		meta.Composer = decodeTextFrame(data)
	case "COMM":
		meta.Comment = decodeCommFrame(data)
	case "TYER", "TDRC":
		if y, err := strconv.Atoi(firstDigits(decodeTextFrame(data))); err == nil {
			meta.Year = y
		}
	case "TRCK":
		num, total := splitTrackPair(decodeTextFrame(data))
		meta.TrackNumber = num
		meta.TrackTotal = total
	case "TPOS":
		num, total := splitTrackPair(decodeTextFrame(data))
		meta.DiscNumber = num
		meta.DiscTotal = total
	case "TXXX":
		desc, value := decodeTXXXFrame(data)
		applyUserDefinedFrame(desc, value, meta)
	}
}

// applyUserDefinedFrame maps common audiobook TXXX description keys (as
// written by tools like mp3tag and Audiobookshelf) onto metadata fields.
func applyUserDefinedFrame(desc, value string, meta *audiometa.Metadata) {
	switch strings.ToLower(strings.TrimSpace(desc)) {
	case "narrator", "narrated by":
		meta.Narrator = value
	case "series":
		meta.Series = value
	case "series part", "series-part", "part":
		meta.SeriesPart = value
	case "publisher":
		meta.Publisher = value
	case "isbn":
		meta.ISBN = value
	case "asin":
		meta.ASIN = value
	}
}

// decodeTextFrame decodes a T??? text-information frame: one encoding byte
// followed by the text. Only Latin-1 (0x00) and UTF-8 (0x03) are common in
// the wild for audiobook taggers; other encodings are passed through as-is.
func decodeTextFrame(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	text := string(data[1:])
	text = strings.TrimRight(text, "\x00")
	return strings.TrimSpace(text)
}

// decodeTXXXFrame splits a TXXX frame into its description and value, which
// are two null-terminated (or encoding-dependent) strings after the
// encoding byte.
func decodeTXXXFrame(data []byte) (string, string) {
	if len(data) == 0 {
		return "", ""
	}
	body := data[1:]
	parts := strings.SplitN(string(body), "\x00", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(strings.TrimRight(parts[1], "\x00"))
}

// decodeCommFrame decodes a COMM frame: encoding byte, 3-byte language,
// short description, null, then the comment text.
func decodeCommFrame(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	body := data[4:]
	parts := strings.SplitN(string(body), "\x00", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(strings.TrimRight(parts[1], "\x00"))
	}
	return strings.TrimSpace(strings.TrimRight(string(body), "\x00"))
}

func splitTrackPair(s string) (num int, total int) {
	parts := strings.SplitN(s, "/", 2)
	num, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
	if len(parts) == 2 {
		total, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	}
	return num, total
}

func firstDigits(s string) string {
	s = strings.TrimSpace(s)
	for i, r := range s {
		if r < '0' || r > '9' {
			return s[:i]
		}
	}
	return s
}
