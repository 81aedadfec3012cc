package mp3

// createMinimalMP3WithID3 builds a tiny but structurally valid MP3: an empty
// ID3v2.3 tag followed by a handful of real MPEG-1 Layer III frame headers
// (128kbps, 44100Hz, stereo), enough for parseID3v2/parseTechnicalInfo to
// succeed and report a non-zero duration.
func createMinimalMP3WithID3() []byte {
	var buf []byte

	// ID3v2.3 header, zero-length (no frames).
	buf = append(buf, 'I', 'D', '3', 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)

	const frameSize = 417 // 144 * 128000 / 44100, no padding
	const frameCount = 4

	header := []byte{0xFF, 0xFB, 0x90, 0x00}
	for i := 0; i < frameCount; i++ {
		frame := make([]byte, frameSize)
		copy(frame, header)
		buf = append(buf, frame...)
	}

	return buf
}
