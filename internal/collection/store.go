package collection

import (
	"container/heap"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/castshelf/internal/apperr"
)

// Key prefixes separate the three logical trees sharing one badger database:
// folder records (C3 proper), per-folder position maps, and per-group
// latest-folder pointers (both owned by internal/position, which writes
// into this same Store).
const (
	folderPrefix   = "f:"
	positionPrefix = "p:"
	latestPrefix   = "l:"
)

// Recomputer calls back into the folder lister (C2) to build a fresh record
// for a path when the cached one is missing or stale.
type Recomputer interface {
	Recompute(path string) (*Record, error)
}

// Store is the embedded KV collection index.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the badger database at dir.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open collection store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func folderKey(path string) []byte { return []byte(folderPrefix + path) }

// Get deserializes the folder record at path. Returns apperr.ErrNotFound if absent.
func (s *Store) Get(path string) (*Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(folderKey(path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return apperr.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetIfFresh returns the cached record only if its modified time is at least
// as new as fsMtime; otherwise it behaves like a miss (apperr.ErrNotFound).
func (s *Store) GetIfFresh(path string, fsMtime time.Time) (*Record, error) {
	rec, err := s.Get(path)
	if err != nil {
		return nil, err
	}
	if rec.Modified.Before(fsMtime) {
		return nil, apperr.ErrNotFound
	}
	return rec, nil
}

// Put replaces the folder record at path.
func (s *Store) Put(path string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal folder record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(folderKey(path), data)
	})
}

// ForceRecompute calls r.Recompute and stores the result.
func (s *Store) ForceRecompute(path string, r Recomputer) (*Record, error) {
	rec, err := r.Recompute(path)
	if err != nil {
		return nil, err
	}
	if err := s.Put(path, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Remove deletes a single folder key.
func (s *Store) Remove(path string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(folderKey(path))
	})
}

// RemoveSubtree deletes every folder key with path as a prefix, and every
// position record with the same prefix, as one atomic batch.
func (s *Store) RemoveSubtree(path string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, []byte(folderPrefix+path)); err != nil {
			return err
		}
		return deletePrefix(txn, []byte(positionPrefix+path))
	})
}

// RenameSubtree moves every folder and position record rooted at oldPath to
// newPath, preserving cached data instead of forcing a full recompute: every
// embedded path within a moved folder record (subfolders[].path, files[].path,
// cover.path, description.path) is rewritten in place, the renamed root's
// Modified is set to rootModified (the fresh mtime from the filesystem; a
// zero value leaves it as cached), and every latest-folder pointer (l:)
// referencing a path under oldPath is rewritten to the equivalent path under
// newPath. Used as the cheap path for a directory rename; callers fall back
// to RemoveSubtree+ForceRecompute when this can't apply (e.g. the rename
// also changed file contents enough to invalidate the cache).
func (s *Store) RenameSubtree(oldPath, newPath string, rootModified time.Time) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := renameFolderRecords(txn, oldPath, newPath, rootModified); err != nil {
			return err
		}
		if err := renamePrefixed(txn, positionPrefix, oldPath, newPath); err != nil {
			return err
		}
		return rewriteLatestPointers(txn, oldPath, newPath)
	})
}

// renameFolderRecords moves every folder-tree key rooted at oldPath to
// newPath, rewriting each record's own embedded paths (and, for the exact
// renamed root, its Modified) along the way.
func renameFolderRecords(txn *badger.Txn, oldPath, newPath string, rootModified time.Time) error {
	prefix := []byte(folderPrefix + oldPath)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)

	type kv struct {
		key []byte
		val []byte
	}
	var moves []kv
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			it.Close()
			return err
		}
		moves = append(moves, kv{key: item.KeyCopy(nil), val: val})
	}
	it.Close()

	for _, m := range moves {
		suffix := strings.TrimPrefix(string(m.key), folderPrefix+oldPath)
		if suffix != "" && !strings.HasPrefix(suffix, "/") {
			continue // sibling whose name merely starts with oldPath
		}
		isRoot := suffix == ""
		newKey := []byte(folderPrefix + newPath + suffix)

		var rec Record
		if err := json.Unmarshal(m.val, &rec); err != nil {
			return fmt.Errorf("unmarshal folder record during rename: %w", err)
		}
		rewriteRecordPaths(&rec, oldPath, newPath)
		if isRoot && !rootModified.IsZero() {
			rec.Modified = rootModified
		}
		newVal, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("marshal folder record during rename: %w", err)
		}

		if err := txn.Delete(m.key); err != nil {
			return err
		}
		if err := txn.Set(newKey, newVal); err != nil {
			return err
		}
	}
	return nil
}

// rewriteRecordPaths rewrites every embedded path within rec that falls
// under oldPath to the equivalent path under newPath.
func rewriteRecordPaths(rec *Record, oldPath, newPath string) {
	for i := range rec.Files {
		rec.Files[i].Path = rewritePathUnder(rec.Files[i].Path, oldPath, newPath)
	}
	for i := range rec.Subfolders {
		rec.Subfolders[i].Path = rewritePathUnder(rec.Subfolders[i].Path, oldPath, newPath)
	}
	if rec.Cover != nil {
		rec.Cover.Path = rewritePathUnder(rec.Cover.Path, oldPath, newPath)
	}
	if rec.Description != nil {
		rec.Description.Path = rewritePathUnder(rec.Description.Path, oldPath, newPath)
	}
}

// rewritePathUnder rewrites p to the equivalent path under newPath if p is
// oldPath itself or falls under it; otherwise p is returned unchanged. Chapter
// vpaths encode the real file path as their first segment, so this also
// correctly rewrites a chapterised file's embedded chapter entries.
func rewritePathUnder(p, oldPath, newPath string) string {
	if p == oldPath {
		return newPath
	}
	if strings.HasPrefix(p, oldPath+"/") {
		return newPath + p[len(oldPath):]
	}
	return p
}

// rewriteLatestPointers rewrites every per-group latest-folder pointer (l:)
// whose value falls under oldPath to the equivalent path under newPath.
func rewriteLatestPointers(txn *badger.Txn, oldPath, newPath string) error {
	prefix := []byte(latestPrefix)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)

	type kv struct {
		key []byte
		val []byte
	}
	var updates []kv
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			it.Close()
			return err
		}
		rewritten := rewritePathUnder(string(val), oldPath, newPath)
		if rewritten != string(val) {
			updates = append(updates, kv{key: item.KeyCopy(nil), val: []byte(rewritten)})
		}
	}
	it.Close()

	for _, u := range updates {
		if err := txn.Set(u.key, u.val); err != nil {
			return err
		}
	}
	return nil
}

func renamePrefixed(txn *badger.Txn, treePrefix, oldPath, newPath string) error {
	prefix := []byte(treePrefix + oldPath)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)

	type kv struct {
		key []byte
		val []byte
	}
	var moves []kv
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			it.Close()
			return err
		}
		moves = append(moves, kv{key: item.KeyCopy(nil), val: val})
	}
	it.Close()

	for _, m := range moves {
		suffix := strings.TrimPrefix(string(m.key), treePrefix+oldPath)
		if suffix != "" && !strings.HasPrefix(suffix, "/") {
			continue // sibling whose name merely starts with oldPath
		}
		newKey := []byte(treePrefix + newPath + suffix)
		if err := txn.Delete(m.key); err != nil {
			return err
		}
		if err := txn.Set(newKey, m.val); err != nil {
			return err
		}
	}
	return nil
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().KeyCopy(nil)
		keys = append(keys, key)
	}
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Entry is one (path, record) pair returned by iteration-based queries.
type Entry struct {
	Path   string
	Record *Record
}

// Iter returns every folder record in key order.
func (s *Store) Iter() ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(folderPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(folderPrefix)); it.ValidForPrefix([]byte(folderPrefix)); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			path := strings.TrimPrefix(string(it.Item().Key()), folderPrefix)
			entries = append(entries, Entry{Path: path, Record: &rec})
		}
		return nil
	})
	return entries, err
}

// Search performs a lowercase prefix-skipping scan: for each key whose
// lowercase form contains every token, emit one result then skip all of its
// descendants (so a match on a folder doesn't also surface every file below it).
func (s *Store) Search(tokens []string) ([]Entry, error) {
	lowerTokens := make([]string, len(tokens))
	for i, t := range tokens {
		lowerTokens[i] = strings.ToLower(t)
	}

	var results []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(folderPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		var skipPrefix string
		for it.Seek([]byte(folderPrefix)); it.ValidForPrefix([]byte(folderPrefix)); it.Next() {
			path := strings.TrimPrefix(string(it.Item().Key()), folderPrefix)

			if skipPrefix != "" && strings.HasPrefix(path, skipPrefix) {
				continue
			}

			if matchesAllTokens(strings.ToLower(path), lowerTokens) {
				var rec Record
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &rec)
				}); err != nil {
					return err
				}
				results = append(results, Entry{Path: path, Record: &rec})
				skipPrefix = path + "/"
			} else {
				skipPrefix = ""
			}
		}
		return nil
	})
	return results, err
}

func matchesAllTokens(haystack string, tokens []string) bool {
	for _, tok := range tokens {
		if !strings.Contains(haystack, tok) {
			return false
		}
	}
	return true
}

// recentItem is a min-heap element keyed by Modified, used to keep the N
// most-recently modified folders while scanning the whole tree once.
type recentItem struct {
	entry Entry
}

type recentHeap []recentItem

func (h recentHeap) Len() int { return len(h) }
func (h recentHeap) Less(i, j int) bool {
	return h[i].entry.Record.Modified.Before(h[j].entry.Record.Modified)
}
func (h recentHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *recentHeap) Push(x any)         { *h = append(*h, x.(recentItem)) }
func (h *recentHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Recent returns the limit most-recently-modified folders, newest first,
// using a bounded min-heap of size limit+1 so the whole tree is scanned
// exactly once regardless of limit.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	h := &recentHeap{}
	heap.Init(h)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(folderPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(folderPrefix)); it.ValidForPrefix([]byte(folderPrefix)); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			path := strings.TrimPrefix(string(it.Item().Key()), folderPrefix)
			heap.Push(h, recentItem{entry: Entry{Path: path, Record: &rec}})
			if h.Len() > limit {
				heap.Pop(h)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]Entry, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		item := heap.Pop(h).(recentItem)
		result[i] = item.entry
	}
	return result, nil
}

// Flush durably persists all pending writes across all three trees (they
// share one badger instance, so a single sync covers them).
func (s *Store) Flush() error {
	return s.db.Sync()
}

// View exposes a read-only transaction for callers (internal/position) that
// need to share ACID semantics with folder-record reads.
func (s *Store) View(fn func(txn *badger.Txn) error) error {
	return s.db.View(fn)
}

// Update exposes a read-write transaction for callers (internal/position)
// that need to share ACID semantics with folder-record writes, e.g.
// checking a folder exists before inserting a position for it.
func (s *Store) Update(fn func(txn *badger.Txn) error) error {
	return s.db.Update(fn)
}

// GetRecordTxn reads a folder record inside an existing transaction.
func GetRecordTxn(txn *badger.Txn, path string) (*Record, error) {
	item, err := txn.Get(folderKey(path))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PositionKey and LatestKey build keys in the position/latest trees; they
// are exported so internal/position can share this Store's database and
// transactions without duplicating the key scheme.
func PositionKey(folder string) []byte { return []byte(positionPrefix + folder) }
func LatestKey(group string) []byte    { return []byte(latestPrefix + group) }

// PositionPrefix is the raw prefix over which position keys range, exported
// for internal/position's recursive scans.
var PositionPrefix = []byte(positionPrefix)

// TrimPositionPrefix strips the position-tree prefix from a raw key.
func TrimPositionPrefix(key []byte) string {
	return strings.TrimPrefix(string(key), positionPrefix)
}
