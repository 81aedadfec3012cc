// Package cache implements the transcoding cache (C8): a bounded on-disk LRU
// of finished transcoded artifacts keyed by an opaque caller-chosen string
// (conventionally quality + source path + chapter span), with crash-safe
// index recovery and single-writer-per-key discipline.
package cache

import (
	"bufio"
	"container/list"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/listenupapp/castshelf/internal/apperr"
)

// MaxKeySize is the largest key add will accept.
const MaxKeySize = 4096

const (
	entriesDir = "entries"
	partialDir = "partial"
	indexFile  = "index"
)

type entry struct {
	key   string
	id    string
	mtime time.Time
	size  int64
}

// Cache is a bounded on-disk LRU of committed artifacts.
type Cache struct {
	root     string
	maxSize  int64
	maxFiles int
	logger   *slog.Logger

	mu     sync.Mutex
	lru    *list.List // front = least-recently-used, back = most-recently-used
	byKey  map[string]*list.Element
	opened map[string]struct{}
	size   int64
}

// Open prepares the cache at root: any partial/ directory from a previous
// run is wiped (in-flight writes were never visible, so losing them is
// safe), then the index is replayed, dropping entries whose artifact file is
// missing or that no longer fit current bounds. After replay, entries/ is
// swept for files the index doesn't reference.
func Open(root string, maxSize int64, maxFiles int, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(root, entriesDir), 0o755); err != nil {
		return nil, apperr.Fatal(fmt.Sprintf("create cache entries dir: %v", err))
	}
	if err := os.RemoveAll(filepath.Join(root, partialDir)); err != nil {
		return nil, apperr.Fatal(fmt.Sprintf("wipe cache partial dir: %v", err))
	}
	if err := os.MkdirAll(filepath.Join(root, partialDir), 0o755); err != nil {
		return nil, apperr.Fatal(fmt.Sprintf("create cache partial dir: %v", err))
	}

	c := &Cache{
		root:     root,
		maxSize:  maxSize,
		maxFiles: maxFiles,
		logger:   logger,
		lru:      list.New(),
		byKey:    make(map[string]*list.Element),
		opened:   make(map[string]struct{}),
	}

	referenced, err := c.replayIndex()
	if err != nil {
		logger.Warn("cache index load failed, rebuilding from entries directory", "error", err)
		c.lru = list.New()
		c.byKey = make(map[string]*list.Element)
		c.size = 0
		referenced = map[string]bool{}
	}
	c.sweepUnreferenced(referenced)

	return c, nil
}

func (c *Cache) replayIndex() (map[string]bool, error) {
	referenced := map[string]bool{}

	f, err := os.Open(filepath.Join(c.root, indexFile))
	if os.IsNotExist(err) {
		return referenced, nil
	}
	if err != nil {
		return referenced, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		key, id, err := readIndexRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return referenced, err
		}

		info, statErr := os.Stat(filepath.Join(c.root, entriesDir, id))
		if statErr != nil {
			c.logger.Warn("dropping cache index entry with missing artifact", "key", key, "id", id)
			continue
		}
		if c.size+info.Size() > c.maxSize || c.lru.Len()+1 > c.maxFiles {
			c.logger.Warn("dropping cache index entry that no longer fits current bounds", "key", key, "id", id)
			continue
		}

		ent := &entry{key: key, id: id, mtime: info.ModTime(), size: info.Size()}
		elem := c.lru.PushBack(ent)
		c.byKey[key] = elem
		c.size += info.Size()
		referenced[id] = true
	}
	return referenced, nil
}

func (c *Cache) sweepUnreferenced(referenced map[string]bool) {
	entries, err := os.ReadDir(filepath.Join(c.root, entriesDir))
	if err != nil {
		return
	}
	for _, e := range entries {
		if !referenced[e.Name()] {
			_ = os.Remove(filepath.Join(c.root, entriesDir, e.Name()))
		}
	}
}

func readIndexRecord(r *bufio.Reader) (key, id string, err error) {
	var keyLen uint16
	if err := binary.Read(r, binary.BigEndian, &keyLen); err != nil {
		return "", "", err
	}
	keyBytes := make([]byte, keyLen)
	if _, err := io.ReadFull(r, keyBytes); err != nil {
		return "", "", err
	}

	var idLen uint16
	if err := binary.Read(r, binary.BigEndian, &idLen); err != nil {
		return "", "", err
	}
	idBytes := make([]byte, idLen)
	if _, err := io.ReadFull(r, idBytes); err != nil {
		return "", "", err
	}

	return string(keyBytes), string(idBytes), nil
}

func writeIndexRecord(w *bufio.Writer, key, id string) error {
	if err := binary.Write(w, binary.BigEndian, uint16(len(key))); err != nil {
		return err
	}
	if _, err := w.WriteString(key); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(id))); err != nil {
		return err
	}
	_, err := w.WriteString(id)
	return err
}

// SaveIndex persists the current LRU order to disk, atomically replacing the
// index file.
func (c *Cache) SaveIndex() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveIndexLocked()
}

func (c *Cache) saveIndexLocked() error {
	tmpPath := filepath.Join(c.root, indexFile+".tmp")
	f, err := os.Create(tmpPath) //#nosec G304 -- path is derived from the configured cache root, not external input
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for e := c.lru.Front(); e != nil; e = e.Next() {
		ent := e.Value.(*entry)
		if err := writeIndexRecord(w, ent.key, ent.id); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, filepath.Join(c.root, indexFile))
}

func newFileID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unreachable in practice; fall
		// back to a UUID so add() still has a usable file-id.
		return uuid.New().String(), nil
	}
	return hex.EncodeToString(buf), nil
}

// Finisher commits or rolls back an in-flight add().
type Finisher struct {
	cache *Cache
	key   string
	id    string
	mtime time.Time
	file  *os.File
}

// Add opens a new in-flight artifact for key. Returns apperr.ErrKeyExists if
// key already has a committed entry, apperr.ErrKeyBeingAdded if another add
// for the same key is in flight, and apperr.ErrInvalidKey if key exceeds
// MaxKeySize.
func (c *Cache) Add(key string, mtime time.Time) (io.WriteCloser, *Finisher, error) {
	if len(key) > MaxKeySize {
		return nil, nil, apperr.InvalidKey(fmt.Sprintf("cache key exceeds %d bytes", MaxKeySize))
	}

	c.mu.Lock()
	if _, ok := c.byKey[key]; ok {
		c.mu.Unlock()
		return nil, nil, apperr.KeyExists(fmt.Sprintf("cache key %q already has a committed entry", key))
	}
	if _, ok := c.opened[key]; ok {
		c.mu.Unlock()
		return nil, nil, apperr.KeyBeingAdded(fmt.Sprintf("cache key %q is already being written", key))
	}
	c.opened[key] = struct{}{}
	c.mu.Unlock()

	id, err := newFileID()
	if err != nil {
		c.mu.Lock()
		delete(c.opened, key)
		c.mu.Unlock()
		return nil, nil, apperr.Internalf("generate cache file id: %v", err)
	}

	f, err := os.Create(filepath.Join(c.root, partialDir, id)) //#nosec G304 -- id is generated internally, not from external input
	if err != nil {
		c.mu.Lock()
		delete(c.opened, key)
		c.mu.Unlock()
		return nil, nil, apperr.Internalf("create partial cache artifact: %v", err)
	}

	return f, &Finisher{cache: c, key: key, id: id, mtime: mtime, file: f}, nil
}

// Commit finalizes the artifact: rejects with apperr.ErrFileTooBig if it
// exceeds max_size, evicts LRU-least entries until the new one fits within
// max_size/max_files, then atomically publishes it.
func (f *Finisher) Commit() error {
	c := f.cache
	defer c.clearOpened(f.key)

	if err := f.file.Sync(); err != nil {
		f.file.Close()
		_ = os.Remove(f.file.Name())
		return apperr.Internalf("sync cache artifact: %v", err)
	}
	info, err := f.file.Stat()
	if err != nil {
		f.file.Close()
		_ = os.Remove(f.file.Name())
		return apperr.Internalf("stat cache artifact: %v", err)
	}
	if err := f.file.Close(); err != nil {
		_ = os.Remove(filepath.Join(c.root, partialDir, f.id))
		return apperr.Internalf("close cache artifact: %v", err)
	}

	size := info.Size()
	if size > c.maxSize {
		_ = os.Remove(filepath.Join(c.root, partialDir, f.id))
		return apperr.FileTooBig(fmt.Sprintf("cache artifact of %d bytes exceeds max_size %d", size, c.maxSize))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for (c.size+size > c.maxSize || c.lru.Len()+1 > c.maxFiles) && c.lru.Len() > 0 {
		c.evictLRULocked()
	}

	if err := os.Rename(filepath.Join(c.root, partialDir, f.id), filepath.Join(c.root, entriesDir, f.id)); err != nil {
		return apperr.Internalf("publish cache artifact: %v", err)
	}

	ent := &entry{key: f.key, id: f.id, mtime: f.mtime, size: size}
	elem := c.lru.PushBack(ent)
	c.byKey[f.key] = elem
	c.size += size

	if err := c.saveIndexLocked(); err != nil {
		c.logger.Error("failed to persist cache index after commit", "error", err)
	}
	return nil
}

// Rollback discards the in-flight artifact. Safe to call after Commit has
// already run (no-op) and safe to call multiple times.
func (f *Finisher) Rollback() error {
	_ = f.file.Close()
	_ = os.Remove(filepath.Join(f.cache.root, partialDir, f.id))
	f.cache.clearOpened(f.key)
	return nil
}

func (c *Cache) clearOpened(key string) {
	c.mu.Lock()
	delete(c.opened, key)
	c.mu.Unlock()
}

// evictLRULocked removes the least-recently-used entry. Caller holds c.mu.
func (c *Cache) evictLRULocked() {
	front := c.lru.Front()
	if front == nil {
		return
	}
	ent := front.Value.(*entry)
	c.lru.Remove(front)
	delete(c.byKey, ent.key)
	c.size -= ent.size
	_ = os.Remove(filepath.Join(c.root, entriesDir, ent.id))
}

// Get returns an open read handle for key if a fresh entry exists, touching
// its LRU recency. Entries whose stored mtime predates the queried mtime are
// treated as stale: evicted and reported as a miss, same as an entry whose
// backing file has vanished from disk.
func (c *Cache) Get(key string, mtime time.Time) (io.ReadCloser, error) {
	c.mu.Lock()

	elem, ok := c.byKey[key]
	if !ok {
		c.mu.Unlock()
		return nil, apperr.ErrNotFound
	}
	ent := elem.Value.(*entry)

	path := filepath.Join(c.root, entriesDir, ent.id)
	info, err := os.Stat(path)
	if err != nil {
		c.lru.Remove(elem)
		delete(c.byKey, ent.key)
		c.size -= ent.size
		c.mu.Unlock()
		return nil, apperr.ErrNotFound
	}

	if ent.mtime.Before(mtime) {
		c.lru.Remove(elem)
		delete(c.byKey, ent.key)
		c.size -= info.Size()
		c.mu.Unlock()
		_ = os.Remove(path)
		return nil, apperr.Stale(fmt.Sprintf("cache entry for %q is older than requested mtime", key))
	}

	c.lru.MoveToBack(elem)
	c.mu.Unlock()

	return os.Open(path) //#nosec G304 -- path is derived from an internally-generated file id
}

// Stats reports the current entry count and total byte size, for diagnostics.
func (c *Cache) Stats() (count int, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len(), c.size
}
