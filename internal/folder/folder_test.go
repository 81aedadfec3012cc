package folder_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/castshelf/internal/collation"
	"github.com/listenupapp/castshelf/internal/config"
	"github.com/listenupapp/castshelf/internal/folder"
	"github.com/listenupapp/castshelf/internal/probe"
)

// fakeProber returns canned probe.Result values keyed by full path, so tests
// don't need real audio bytes on disk.
type fakeProber struct {
	results map[string]*probe.Result
}

func (f *fakeProber) Probe(_ context.Context, path string) (*probe.Result, error) {
	if r, ok := f.results[path]; ok {
		return r, nil
	}
	return &probe.Result{Tags: map[string]string{}}, nil
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
}

func TestListDir_BasicFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "01 - intro.mp3"))
	writeFile(t, filepath.Join(dir, "02 - chapter one.mp3"))
	writeFile(t, filepath.Join(dir, "cover.jpg"))

	prober := &fakeProber{results: map[string]*probe.Result{
		filepath.Join(dir, "01 - intro.mp3"):          {DurationMS: 60_000, BitrateKbps: 64, Tags: map[string]string{"album": "Book"}},
		filepath.Join(dir, "02 - chapter one.mp3"):    {DurationMS: 120_000, BitrateKbps: 64, Tags: map[string]string{"album": "Book"}},
	}}

	l := folder.New(prober, config.FolderConfig{NaturalSort: true}, collation.Default(true))
	rec, err := l.ListDir(context.Background(), dir, ".")
	require.NoError(t, err)

	require.Len(t, rec.Files, 2)
	assert.Equal(t, "01 - intro.mp3", rec.Files[0].Name)
	assert.Equal(t, "02 - chapter one.mp3", rec.Files[1].Name)
	require.NotNil(t, rec.Cover)
	assert.Equal(t, "image/jpeg", rec.Cover.Mime)
	assert.Equal(t, 180.0, rec.TotalTimeS)
	// The shared "album" tag should be factored up to the record.
	assert.Equal(t, "Book", rec.Tags["album"])
	assert.Empty(t, rec.Files[0].Meta.Tags["album"])
}

func TestListDir_ChapteriseLongFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "full-book.m4b"))

	prober := &fakeProber{results: map[string]*probe.Result{
		filepath.Join(dir, "full-book.m4b"): {
			DurationMS: 3 * 3600 * 1000,
			Chapters: []probe.Chapter{
				{N: 1, Title: "Chapter 1", StartMS: 0, EndMS: 1_800_000},
				{N: 2, Title: "Chapter 2", StartMS: 1_800_000, EndMS: 3_600_000},
			},
		},
	}}

	l := folder.New(prober, config.FolderConfig{}, collation.Default(true))
	rec, err := l.ListDir(context.Background(), dir, ".")
	require.NoError(t, err)

	// Single-subfolder collapse: the only entry is a chapterised file, so the
	// whole directory presents as that file's own chapter listing.
	assert.True(t, rec.IsFile)
	require.Len(t, rec.Files, 2)
	assert.Contains(t, rec.Files[0].Name, "Chapter 1")

	require.NotNil(t, rec.Files[0].Section)
	assert.EqualValues(t, 0, rec.Files[0].Section.StartMS)
	require.NotNil(t, rec.Files[0].Section.DurationMS)
	assert.EqualValues(t, 1_800_000, *rec.Files[0].Section.DurationMS)

	require.NotNil(t, rec.Files[1].Section)
	assert.EqualValues(t, 1_800_000, rec.Files[1].Section.StartMS)
	require.NotNil(t, rec.Files[1].Section.DurationMS)
	assert.EqualValues(t, 1_800_000, *rec.Files[1].Section.DurationMS)
}

func TestListDir_ChapteriseFromDurationThreshold(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "short.mp3"))
	writeFile(t, filepath.Join(dir, "long.mp3"))

	prober := &fakeProber{results: map[string]*probe.Result{
		filepath.Join(dir, "short.mp3"): {DurationMS: 60_000},
		filepath.Join(dir, "long.mp3"):  {DurationMS: 4 * 3600 * 1000},
	}}

	l := folder.New(prober, config.FolderConfig{ChapteriseFromDuration: 2 * time.Hour}, collation.Default(true))
	rec, err := l.ListDir(context.Background(), dir, ".")
	require.NoError(t, err)

	require.Len(t, rec.Files, 1)
	assert.Equal(t, "short.mp3", rec.Files[0].Name)
	require.Len(t, rec.Subfolders, 1)
	assert.True(t, rec.Subfolders[0].IsFile)
	assert.Equal(t, "long.mp3", rec.Subfolders[0].Name)
}

func TestListDir_CDFolderCollapse(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "CD1", "01.mp3"))
	writeFile(t, filepath.Join(dir, "CD2", "01.mp3"))

	l := folder.New(&fakeProber{results: map[string]*probe.Result{}}, config.FolderConfig{}, collation.Default(true))
	rec, err := l.ListDir(context.Background(), dir, ".")
	require.NoError(t, err)

	require.Empty(t, rec.Subfolders)
	require.Len(t, rec.Files, 2)
	names := []string{rec.Files[0].Name, rec.Files[1].Name}
	assert.Contains(t, names, "CD1 01.mp3")
	assert.Contains(t, names, "CD2 01.mp3")
}

func TestListDir_MissingPathErrors(t *testing.T) {
	dir := t.TempDir()
	l := folder.New(&fakeProber{}, config.FolderConfig{}, collation.Default(true))
	_, err := l.ListDir(context.Background(), dir, "does-not-exist")
	assert.Error(t, err)
}
