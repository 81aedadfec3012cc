package collation

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare_NaturalOrdering(t *testing.T) {
	c := Default(true)
	names := []string{"Track 10", "Track 2", "Track 1"}
	sort.Slice(names, func(i, j int) bool { return c.Less(names[i], names[j]) })
	assert.Equal(t, []string{"Track 1", "Track 2", "Track 10"}, names)
}

func TestCompare_WithoutNaturalFallsBackToLexical(t *testing.T) {
	c := Default(false)
	names := []string{"Track 10", "Track 2"}
	sort.Slice(names, func(i, j int) bool { return c.Less(names[i], names[j]) })
	assert.Equal(t, []string{"Track 10", "Track 2"}, names)
}

func TestCompare_LocaleCollation(t *testing.T) {
	c := Default(false)
	assert.True(t, c.Less("apple", "banana"))
	assert.False(t, c.Less("banana", "apple"))
}

func TestSplitRuns(t *testing.T) {
	assert.Equal(t, []string{"Track ", "2"}, splitRuns("Track 2"))
	assert.Equal(t, []string{"2", "x", "10"}, splitRuns("2x10"))
}
