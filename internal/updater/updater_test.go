package updater_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/castshelf/internal/collection"
	"github.com/listenupapp/castshelf/internal/config"
	"github.com/listenupapp/castshelf/internal/updater"
	"github.com/listenupapp/castshelf/internal/watcher"
)

type fakeWatcher struct {
	events chan watcher.Event
	errs   chan error

	mu      sync.Mutex
	watched []string
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{events: make(chan watcher.Event, 16), errs: make(chan error, 1)}
}

func (f *fakeWatcher) Watch(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watched = append(f.watched, path)
	return nil
}

func (f *fakeWatcher) Events() <-chan watcher.Event { return f.events }
func (f *fakeWatcher) Errors() <-chan error         { return f.errs }

// fakeLister mirrors the real directory-listing shape well enough for the
// updater's coalescer: it reads the actual directory tree under root and
// reports subfolders/files as-is, without probing or chapterising.
type fakeLister struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeLister) ListDir(_ context.Context, base, rel string) (*collection.Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rel)
	f.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(base, rel))
	if err != nil {
		return nil, err
	}

	rec := &collection.Record{Modified: time.Now(), TotalTimeS: 1}
	for _, e := range entries {
		childRel := e.Name()
		if rel != "." {
			childRel = rel + "/" + e.Name()
		}
		if e.IsDir() {
			rec.Subfolders = append(rec.Subfolders, collection.Subfolder{Name: e.Name(), Path: childRel})
		} else {
			rec.Files = append(rec.Files, collection.File{Name: e.Name(), Path: childRel})
		}
	}
	return rec, nil
}

func (f *fakeLister) countCalls(rel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == rel {
			n++
		}
	}
	return n
}

func setupStore(t *testing.T) *collection.Store {
	t.Helper()
	s, err := collection.Open(filepath.Join(t.TempDir(), "db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustWriteFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
}

func runUpdater(t *testing.T, u *updater.Updater, timeout time.Duration) (cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithTimeout(context.Background(), timeout)
	doneCh := make(chan error, 1)
	go func() { doneCh <- u.Run(ctx) }()

	select {
	case <-u.Ready():
	case <-time.After(timeout):
		t.Fatal("updater never became ready")
	}
	return cancelFn, doneCh
}

func TestUpdater_CoalescesAndRecomputes(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "Author/Book/01.mp3"))
	mustWriteFile(t, filepath.Join(root, "Author/Book/02.mp3"))

	store := setupStore(t)
	lister := &fakeLister{}
	w := newFakeWatcher()

	u := updater.New(w, store, lister, root, config.CollectionConfig{CoalesceInterval: 20 * time.Millisecond}, nil)
	cancel, done := runUpdater(t, u, time.Second)
	defer cancel()

	rec, err := store.Get("Author/Book")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.TotalTimeS)
	initialCalls := lister.countCalls("Author/Book")
	require.Equal(t, 1, initialCalls, "initial recursive scan should have visited Author/Book exactly once")

	w.events <- watcher.Event{Type: watcher.EventModified, Path: filepath.Join(root, "Author/Book/01.mp3")}
	w.events <- watcher.Event{Type: watcher.EventModified, Path: filepath.Join(root, "Author/Book/02.mp3")}

	require.Eventually(t, func() bool {
		return lister.countCalls("Author/Book") == initialCalls+1
	}, time.Second, 10*time.Millisecond, "both events touched the same folder, so exactly one coalesced recompute should fire")

	cancel()
	<-done
}

func TestUpdater_RemoveOnDelete(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "Author/Book/01.mp3"))

	store := setupStore(t)
	lister := &fakeLister{}
	w := newFakeWatcher()

	u := updater.New(w, store, lister, root, config.CollectionConfig{CoalesceInterval: 20 * time.Millisecond}, nil)
	cancel, done := runUpdater(t, u, time.Second)
	defer cancel()

	_, err := store.Get("Author/Book")
	require.NoError(t, err, "initial scan should have indexed the folder")

	require.NoError(t, os.RemoveAll(filepath.Join(root, "Author/Book")))
	w.events <- watcher.Event{Type: watcher.EventRemoved, Path: filepath.Join(root, "Author/Book")}

	require.Eventually(t, func() bool {
		_, err := store.Get("Author/Book")
		return err != nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestUpdater_RenamePreservesRecords(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "Author/Book/01.mp3"))

	store := setupStore(t)
	lister := &fakeLister{}
	w := newFakeWatcher()

	u := updater.New(w, store, lister, root, config.CollectionConfig{CoalesceInterval: 20 * time.Millisecond}, nil)
	cancel, done := runUpdater(t, u, time.Second)
	defer cancel()

	_, err := store.Get("Author/Book")
	require.NoError(t, err)
	callsBeforeRename := lister.countCalls("Author/Book") + lister.countCalls("Author/Renamed")

	oldFull := filepath.Join(root, "Author/Book")
	newFull := filepath.Join(root, "Author/Renamed")
	require.NoError(t, os.Rename(oldFull, newFull))
	w.events <- watcher.Event{Type: watcher.EventMoved, OldPath: oldFull, Path: newFull}

	require.Eventually(t, func() bool {
		_, err := store.Get("Author/Renamed")
		return err == nil
	}, time.Second, 10*time.Millisecond)

	_, err = store.Get("Author/Book")
	assert.Error(t, err, "the old path must no longer be indexed")

	renamed, err := store.Get("Author/Renamed")
	require.NoError(t, err)
	require.Len(t, renamed.Files, 1)
	assert.Equal(t, "Author/Renamed/01.mp3", renamed.Files[0].Path)

	// The rename must have taken the cheap RenameSubtree path, not a recompute
	// fallback: the lister should not have been called again for either name.
	callsAfterRename := lister.countCalls("Author/Book") + lister.countCalls("Author/Renamed")
	assert.Equal(t, callsBeforeRename, callsAfterRename)

	cancel()
	<-done
}
