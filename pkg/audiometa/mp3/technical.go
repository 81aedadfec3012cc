package mp3

import (
	"time"

	"github.com/listenupapp/castshelf/pkg/audiometa"
	"github.com/listenupapp/castshelf/pkg/audiometa/internal/binary"
)

// bitrateTableV1L3 is the MPEG-1 Layer III bitrate table, in kbps, indexed
// by the 4-bit bitrate index from the frame header. Index 0 means "free",
// which isn't supported here.
var bitrateTableV1L3 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}

// bitrateTableV2L3 covers MPEG-2/2.5 Layer III, used by lower-bitrate
// low-sample-rate audiobook encodes.
var bitrateTableV2L3 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}

var sampleRateTableV1 = [4]int{44100, 48000, 32000, 0}
var sampleRateTableV2 = [4]int{22050, 24000, 16000, 0}
var sampleRateTableV25 = [4]int{11025, 12000, 8000, 0}

// parseTechnicalInfo locates the first MPEG audio frame after the ID3v2 tag
// (tagSize bytes in), decodes its header for bitrate/sample rate/channel
// count, and estimates overall duration from the remaining file size. It
// deliberately does not walk every frame in the file (VBR-exact duration);
// a single representative frame is enough for audiobook-grade metadata.
func parseTechnicalInfo(sr *binary.SafeReader, tagSize, fileSize int64, meta *audiometa.Metadata) error {
	offset, header, err := findFrameSync(sr, tagSize, fileSize)
	if err != nil {
		return err
	}

	version := (header[1] >> 3) & 0x03
	layer := (header[1] >> 1) & 0x03
	bitrateIndex := (header[2] >> 4) & 0x0F
	sampleRateIndex := (header[2] >> 2) & 0x03
	channelMode := (header[3] >> 6) & 0x03

	if layer != 0x01 { // 01 == Layer III
		return &audiometa.UnsupportedFormatError{Path: sr.Path(), Reason: "only MPEG Layer III is supported"}
	}

	var bitrate int
	var sampleRate int
	switch version {
	case 0x03: // MPEG1
		bitrate = bitrateTableV1L3[bitrateIndex]
		sampleRate = sampleRateTableV1[sampleRateIndex]
	case 0x02: // MPEG2
		bitrate = bitrateTableV2L3[bitrateIndex]
		sampleRate = sampleRateTableV2[sampleRateIndex]
	case 0x00: // MPEG2.5
		bitrate = bitrateTableV2L3[bitrateIndex]
		sampleRate = sampleRateTableV25[sampleRateIndex]
	default:
		return &audiometa.UnsupportedFormatError{Path: sr.Path(), Reason: "reserved MPEG version"}
	}

	if bitrate == 0 || sampleRate == 0 {
		return &audiometa.CorruptedFileError{Path: sr.Path(), Offset: offset, Reason: "unsupported or free bitrate/sample rate"}
	}

	meta.Codec = "MP3"
	meta.BitRate = bitrate * 1000
	meta.SampleRate = sampleRate
	if channelMode == 0x03 {
		meta.Channels = 1
	} else {
		meta.Channels = 2
	}

	audioBytes := fileSize - offset
	if audioBytes > 0 && meta.BitRate > 0 {
		seconds := float64(audioBytes*8) / float64(meta.BitRate)
		meta.Duration = time.Duration(seconds * float64(time.Second))
	}

	return nil
}

// findFrameSync scans forward from start looking for an 11-bit MPEG audio
// frame sync (0xFFE) and returns its offset and 4-byte header.
func findFrameSync(sr *binary.SafeReader, start, end int64) (int64, []byte, error) {
	for offset := start; offset+4 <= end; offset++ {
		buf := make([]byte, 4)
		if err := sr.ReadAt(buf, offset, "MPEG frame header"); err != nil {
			break
		}
		if buf[0] == 0xFF && buf[1]&0xE0 == 0xE0 {
			return offset, buf, nil
		}
	}
	return 0, nil, &audiometa.UnsupportedFormatError{Path: sr.Path(), Reason: "no MPEG frame sync found"}
}
