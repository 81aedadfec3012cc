// Package position implements reading-position bookkeeping (C5): per-group
// playback offsets within a folder, and a per-group pointer to the folder
// last positioned in, so a client can resume without knowing where it left
// off. It shares internal/collection's embedded KV database and transaction
// helpers rather than keeping a database of its own.
package position

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/castshelf/internal/apperr"
	"github.com/listenupapp/castshelf/internal/collection"
	"github.com/listenupapp/castshelf/internal/config"
)

// Position is one group's playback offset within a folder, pinned to the
// specific file inside that folder the offset is relative to.
type Position struct {
	File      string    `json:"file"`
	OffsetMS  int64     `json:"offset_ms"`
	UpdatedAt time.Time `json:"updated_at"`
	Finished  bool      `json:"finished"`
}

// folderPositions is the value stored per folder: every group with a
// position recorded against it.
type folderPositions map[string]Position

// Store manages reading positions atop a shared collection.Store database.
type Store struct {
	collection *collection.Store
	cfg        config.PositionConfig
}

// New builds a position Store sharing coll's database.
func New(coll *collection.Store, cfg config.PositionConfig) *Store {
	return &Store{collection: coll, cfg: cfg}
}

// Set records group's offset within file, a path inside folder. The folder
// must already be present in the collection index, or this returns
// apperr.ErrNotFound. A folder may hold positions for at most cfg.MaxGroups
// distinct groups; exceeding that on a brand new group returns
// apperr.ErrTooManyGroups. finished is the caller's own claim that playback
// of the folder is complete; it is forced true regardless of that claim
// when file is the folder's last file and offsetMS lands within
// cfg.TimeToFolderEnd of that file's own duration.
func (s *Store) Set(folder, file, group string, offsetMS int64, finished bool) (Position, error) {
	return s.SetWithTimestamp(folder, file, group, offsetMS, finished, time.Now())
}

// ErrIgnoredPosition is returned by SetWithTimestamp when ts is not strictly
// newer than the already-stored position for that group: the insert is a
// no-op retry rather than a write, and is not an error to the client.
var ErrIgnoredPosition = apperr.Ignored("position timestamp is not newer than the stored one")

// SetWithTimestamp is Set plus the use_ts idempotence rule: if folder/group
// already holds a position whose UpdatedAt is not strictly before ts, the
// call is a no-op and returns the unchanged stored position alongside
// ErrIgnoredPosition, so retried inserts of an already-applied position
// don't regress OffsetMS/Finished.
func (s *Store) SetWithTimestamp(folder, file, group string, offsetMS int64, finished bool, ts time.Time) (Position, error) {
	var result Position

	err := s.collection.Update(func(txn *badger.Txn) error {
		rec, err := collection.GetRecordTxn(txn, folder)
		if err != nil {
			return err
		}

		positions, err := readPositions(txn, folder)
		if err != nil {
			return err
		}

		if existing, ok := positions[group]; ok && !ts.After(existing.UpdatedAt) {
			result = existing
			return ErrIgnoredPosition
		}

		if _, exists := positions[group]; !exists {
			max := s.cfg.MaxGroups
			if max <= 0 {
				max = 64
			}
			if len(positions) >= max {
				return apperr.TooManyGroups("folder already has the maximum number of groups holding a position")
			}
		}

		if nearLastFileEnd(rec, file, offsetMS, s.threshold()) {
			finished = true
		}

		pos := Position{File: file, OffsetMS: offsetMS, UpdatedAt: ts, Finished: finished}
		positions[group] = pos
		result = pos

		if err := writePositions(txn, folder, positions); err != nil {
			return err
		}
		return txn.Set(collection.LatestKey(group), []byte(folder))
	})
	if err != nil && !errors.Is(err, ErrIgnoredPosition) {
		return Position{}, err
	}
	return result, err
}

func (s *Store) threshold() time.Duration {
	if s.cfg.TimeToFolderEnd <= 0 {
		return 5 * time.Second
	}
	return s.cfg.TimeToFolderEnd
}

// nearLastFileEnd reports whether file is folder's last file and offsetMS is
// within threshold of that file's own duration — the condition under which
// insert forces Finished=true regardless of the caller's claim.
func nearLastFileEnd(rec *collection.Record, file string, offsetMS int64, threshold time.Duration) bool {
	if len(rec.Files) == 0 {
		return false
	}
	last := rec.Files[len(rec.Files)-1]
	if last.Path != file {
		return false
	}
	durationMS := fileDurationMS(last)
	if durationMS <= 0 {
		return false
	}
	return offsetMS >= durationMS-threshold.Milliseconds()
}

// fileDurationMS returns f's own duration in milliseconds, preferring probed
// technical metadata and falling back to a chapter section's span.
func fileDurationMS(f collection.File) int64 {
	if f.Meta != nil && f.Meta.DurationS > 0 {
		return int64(f.Meta.DurationS) * 1000
	}
	if f.Section != nil && f.Section.DurationMS != nil {
		return int64(*f.Section.DurationMS)
	}
	return 0
}

// Get returns group's recorded position within folder.
// Returns apperr.ErrNotFound if no position is recorded.
func (s *Store) Get(folder, group string) (Position, error) {
	var result Position
	err := s.collection.View(func(txn *badger.Txn) error {
		positions, err := readPositions(txn, folder)
		if err != nil {
			return err
		}
		pos, ok := positions[group]
		if !ok {
			return apperr.ErrNotFound
		}
		result = pos
		return nil
	})
	return result, err
}

// All returns every group's position within folder.
func (s *Store) All(folder string) (map[string]Position, error) {
	var result map[string]Position
	err := s.collection.View(func(txn *badger.Txn) error {
		positions, err := readPositions(txn, folder)
		if err != nil {
			return err
		}
		result = positions
		return nil
	})
	return result, err
}

// Clear removes group's position within folder, if any.
func (s *Store) Clear(folder, group string) error {
	return s.collection.Update(func(txn *badger.Txn) error {
		positions, err := readPositions(txn, folder)
		if err != nil {
			return err
		}
		if _, ok := positions[group]; !ok {
			return nil
		}
		delete(positions, group)
		return writePositions(txn, folder, positions)
	})
}

// LatestFolder returns the folder group was last positioned in.
// Returns apperr.ErrNotFound if group has never had a position recorded.
func (s *Store) LatestFolder(group string) (string, error) {
	var folder string
	err := s.collection.View(func(txn *badger.Txn) error {
		item, err := txn.Get(collection.LatestKey(group))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return apperr.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			folder = string(val)
			return nil
		})
	})
	return folder, err
}

// Entry pairs a folder with one group's recorded position there, returned
// by ListUnder.
type Entry struct {
	Folder   string
	Position Position
}

// ListUnder scans every folder whose path has pathPrefix as a prefix and
// returns those holding a recorded position for group, optionally
// restricted to ones marked Finished. An empty pathPrefix scans every
// folder in the collection.
func (s *Store) ListUnder(pathPrefix, group string, onlyFinished bool) ([]Entry, error) {
	var results []Entry
	err := s.collection.View(func(txn *badger.Txn) error {
		prefix := collection.PositionKey(pathPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			folder := collection.TrimPositionPrefix(item.Key())

			var positions folderPositions
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &positions)
			}); err != nil {
				return err
			}

			pos, ok := positions[group]
			if !ok || (onlyFinished && !pos.Finished) {
				continue
			}
			results = append(results, Entry{Folder: folder, Position: pos})
		}
		return nil
	})
	return results, err
}

// CleanUpPositions removes every position record whose folder key is no
// longer present in the collection index (e.g. the folder key was dropped
// from C3 with Remove, which, unlike RemoveSubtree, leaves the folder's
// positions in place). It returns
// the number of stale folder entries removed.
func (s *Store) CleanUpPositions() (int, error) {
	var stale [][]byte

	err := s.collection.View(func(txn *badger.Txn) error {
		prefix := collection.PositionKey("")
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			folder := collection.TrimPositionPrefix(key)
			if _, err := collection.GetRecordTxn(txn, folder); errors.Is(err, apperr.ErrNotFound) {
				stale = append(stale, key)
			} else if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	err = s.collection.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}

// dumpRecord is one line of the dump_json/restore_json wire format: a
// folder's full group->position map.
type dumpRecord struct {
	Folder    string          `json:"folder"`
	Positions folderPositions `json:"positions"`
}

// DumpJSON stream-serializes every position record as newline-delimited
// JSON, one folder per line, so large collections don't need to be held in
// memory as a single encoded blob.
func (s *Store) DumpJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	return s.collection.View(func(txn *badger.Txn) error {
		prefix := collection.PositionKey("")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			folder := collection.TrimPositionPrefix(item.Key())

			var positions folderPositions
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &positions)
			}); err != nil {
				return err
			}
			if err := enc.Encode(dumpRecord{Folder: folder, Positions: positions}); err != nil {
				return err
			}
		}
		return nil
	})
}

// RestoreJSON reads a stream produced by DumpJSON and replays it through
// SetWithTimestamp with each item's own recorded timestamp, so the use_ts
// idempotence rule governs conflicts the same way a live client retry
// would; ErrIgnoredPosition is swallowed rather than aborting the restore.
func (s *Store) RestoreJSON(r io.Reader) error {
	dec := json.NewDecoder(r)
	for {
		var rec dumpRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		for group, pos := range rec.Positions {
			_, err := s.SetWithTimestamp(rec.Folder, pos.File, group, pos.OffsetMS, pos.Finished, pos.UpdatedAt)
			if err != nil && !errors.Is(err, ErrIgnoredPosition) {
				return err
			}
		}
	}
}

func readPositions(txn *badger.Txn, folder string) (folderPositions, error) {
	item, err := txn.Get(collection.PositionKey(folder))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return folderPositions{}, nil
	}
	if err != nil {
		return nil, err
	}
	var positions folderPositions
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &positions)
	})
	if err != nil {
		return nil, err
	}
	if positions == nil {
		positions = folderPositions{}
	}
	return positions, nil
}

func writePositions(txn *badger.Txn, folder string, positions folderPositions) error {
	data, err := json.Marshal(positions)
	if err != nil {
		return err
	}
	return txn.Set(collection.PositionKey(folder), data)
}
