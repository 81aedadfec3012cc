package vpath

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncode_NotCollapsed(t *testing.T) {
	display, encoded := Encode("books/Mistborn/Mistborn.m4b", Chapter{Num: 2, Title: "The Well of Ascension", StartMS: 1000, EndMS: 2000}, false)
	assert.Equal(t, "002 - The Well of Ascension", display)
	assert.Equal(t, "books/Mistborn/Mistborn.m4b/002 - The Well of Ascension$$1000-2000$$.m4b", encoded)
}

func TestEncode_Collapsed(t *testing.T) {
	_, encoded := Encode("books/Mistborn/Mistborn.m4b", Chapter{Num: 1, Title: "Prologue", StartMS: 0, EndMS: 500}, true)
	assert.Equal(t, "books/Mistborn/Mistborn$$001 - Prologue$$0-500$$.m4b", encoded)
}

func TestEncode_SlashInTitle(t *testing.T) {
	display, _ := Encode("a.m4b", Chapter{Num: 1, Title: "Part One / Two", StartMS: 0, EndMS: 1}, false)
	assert.NotContains(t, display, "/")
}

func TestEncode_LongTitleTruncated(t *testing.T) {
	longTitle := strings.Repeat("x", 400)
	display, encoded := Encode("a.m4b", Chapter{Num: 1, Title: longTitle, StartMS: 0, EndMS: 1}, false)
	assert.Contains(t, display, "...")
	lastSegment := encoded[strings.LastIndex(encoded, "/")+1:]
	assert.LessOrEqual(t, len(lastSegment), MaxSegmentSize)
}

func TestDecode_Literal(t *testing.T) {
	real, span := Decode("books/Mistborn/Mistborn.m4b")
	assert.Equal(t, "books/Mistborn/Mistborn.m4b", real)
	assert.Nil(t, span)
}

func TestDecode_RoundTrip_NotCollapsed(t *testing.T) {
	_, encoded := Encode("books/Mistborn/Mistborn.m4b", Chapter{Num: 2, Title: "The Well", StartMS: 1000, EndMS: 2000}, false)
	real, span := Decode(encoded)
	assert.Equal(t, "books/Mistborn/Mistborn.m4b", real)
	if assert.NotNil(t, span) {
		assert.Equal(t, int64(1000), span.StartMS)
		assert.Equal(t, int64(2000), span.EndMS)
	}
}

func TestDecode_RoundTrip_Collapsed(t *testing.T) {
	_, encoded := Encode("books/Mistborn/Mistborn.m4b", Chapter{Num: 1, Title: "Prologue", StartMS: 0, EndMS: 500}, true)
	real, span := Decode(encoded)
	assert.Equal(t, "books/Mistborn/Mistborn.m4b", real)
	if assert.NotNil(t, span) {
		assert.Equal(t, int64(0), span.StartMS)
		assert.Equal(t, int64(500), span.EndMS)
	}
}

func TestDecode_MalformedSpanIsTolerant(t *testing.T) {
	real, span := Decode("books/a.m4b/chapter$$not-a-span$$.m4b")
	assert.Nil(t, span)
	assert.NotEmpty(t, real)
}

func TestParseSpan(t *testing.T) {
	assert.Nil(t, parseSpan("garbage"))
	assert.Nil(t, parseSpan("1-"))
	s := parseSpan("10-20")
	if assert.NotNil(t, s) {
		assert.Equal(t, int64(10), s.StartMS)
		assert.Equal(t, int64(20), s.EndMS)
	}
}
