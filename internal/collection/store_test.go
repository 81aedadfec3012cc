package collection_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/castshelf/internal/apperr"
	"github.com/listenupapp/castshelf/internal/collection"
)

func setupStore(t *testing.T) *collection.Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "db")
	s, err := collection.Open(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGet_MissingReturnsNotFound(t *testing.T) {
	s := setupStore(t)
	_, err := s.Get("nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPutAndGet(t *testing.T) {
	s := setupStore(t)
	rec := &collection.Record{Modified: time.Now(), TotalTimeS: 42}

	require.NoError(t, s.Put("Author/Book", rec))

	got, err := s.Get("Author/Book")
	require.NoError(t, err)
	assert.Equal(t, 42.0, got.TotalTimeS)
}

func TestGetIfFresh(t *testing.T) {
	s := setupStore(t)
	now := time.Now()
	require.NoError(t, s.Put("a", &collection.Record{Modified: now}))

	_, err := s.GetIfFresh("a", now.Add(-time.Hour))
	assert.NoError(t, err)

	_, err = s.GetIfFresh("a", now.Add(time.Hour))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRemoveSubtree(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.Put("Author", &collection.Record{}))
	require.NoError(t, s.Put("Author/Book1", &collection.Record{}))
	require.NoError(t, s.Put("Author/Book2", &collection.Record{}))
	require.NoError(t, s.Put("Other", &collection.Record{}))

	require.NoError(t, s.RemoveSubtree("Author"))

	_, err := s.Get("Author/Book1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Get("Author/Book2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Get("Other")
	assert.NoError(t, err)
}

func TestRenameSubtree(t *testing.T) {
	s := setupStore(t)
	renamedAt := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put("Author/Book", &collection.Record{
		Modified: time.Unix(0, 0),
		Files: []collection.File{
			{Name: "01.mp3", Path: "Author/Book/01.mp3"},
		},
		Subfolders: []collection.Subfolder{
			{Name: "Extras", Path: "Author/Book/Extras"},
		},
		Cover:       &collection.Asset{Path: "Author/Book/cover.jpg"},
		Description: &collection.Asset{Path: "Author/Book/desc.txt"},
	}))
	require.NoError(t, s.Put("Author/Book/Extras", &collection.Record{
		Files: []collection.File{{Name: "bonus.mp3", Path: "Author/Book/Extras/bonus.mp3"}},
	}))

	require.NoError(t, s.RenameSubtree("Author/Book", "Author/Renamed Book", renamedAt))

	_, err := s.Get("Author/Book")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	root, err := s.Get("Author/Renamed Book")
	require.NoError(t, err)
	assert.True(t, root.Modified.Equal(renamedAt))
	require.Len(t, root.Files, 1)
	assert.Equal(t, "Author/Renamed Book/01.mp3", root.Files[0].Path)
	require.Len(t, root.Subfolders, 1)
	assert.Equal(t, "Author/Renamed Book/Extras", root.Subfolders[0].Path)
	require.NotNil(t, root.Cover)
	assert.Equal(t, "Author/Renamed Book/cover.jpg", root.Cover.Path)
	require.NotNil(t, root.Description)
	assert.Equal(t, "Author/Renamed Book/desc.txt", root.Description.Path)

	child, err := s.Get("Author/Renamed Book/Extras")
	require.NoError(t, err)
	require.Len(t, child.Files, 1)
	assert.Equal(t, "Author/Renamed Book/Extras/bonus.mp3", child.Files[0].Path)
}

func TestSearch_SkipsDescendantsOfAMatch(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.Put("Mistborn", &collection.Record{}))
	require.NoError(t, s.Put("Mistborn/Book1", &collection.Record{}))
	require.NoError(t, s.Put("Mistborn/Book1/ch1", &collection.Record{}))
	require.NoError(t, s.Put("Other Series", &collection.Record{}))

	results, err := s.Search([]string{"mistborn"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Mistborn", results[0].Path)
}

func TestSearch_RequiresAllTokens(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.Put("Mistborn/The Well of Ascension", &collection.Record{}))
	require.NoError(t, s.Put("Mistborn/The Hero of Ages", &collection.Record{}))

	results, err := s.Search([]string{"mistborn", "well"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Path, "Well")
}

func TestRecent_ReturnsNewestFirst(t *testing.T) {
	s := setupStore(t)
	base := time.Now()
	require.NoError(t, s.Put("old", &collection.Record{Modified: base.Add(-time.Hour)}))
	require.NoError(t, s.Put("mid", &collection.Record{Modified: base}))
	require.NoError(t, s.Put("new", &collection.Record{Modified: base.Add(time.Hour)}))

	results, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "new", results[0].Path)
	assert.Equal(t, "mid", results[1].Path)
}

func TestForceRecompute(t *testing.T) {
	s := setupStore(t)
	rc := recomputerFunc(func(path string) (*collection.Record, error) {
		return &collection.Record{TotalTimeS: 7, Modified: time.Now()}, nil
	})

	rec, err := s.ForceRecompute("a", rc)
	require.NoError(t, err)
	assert.Equal(t, 7.0, rec.TotalTimeS)

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 7.0, got.TotalTimeS)
}

type recomputerFunc func(path string) (*collection.Record, error)

func (f recomputerFunc) Recompute(path string) (*collection.Record, error) { return f(path) }
