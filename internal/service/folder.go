package service

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/listenupapp/castshelf/internal/collation"
	"github.com/listenupapp/castshelf/internal/collection"
)

// recomputer adapts a folder.Lister bound to a collection's root into the
// collection.Recomputer interface ForceRecompute calls back through.
type recomputer struct {
	ctx context.Context
	c   *Collection
}

func (r recomputer) Recompute(path string) (*collection.Record, error) {
	return r.c.Lister.ListDir(r.ctx, r.c.Root, path)
}

// ListFolder implements the list-folder operation: the folder record at
// relPath, recomputing it if it's missing or stale, sorted per ordering,
// with each subfolder's Finished flag decorated against group's recorded
// positions.
func (s *Service) ListFolder(ctx context.Context, collectionID, relPath string, ordering collection.Ordering, group string) (*collection.Record, error) {
	c, err := s.collection(collectionID)
	if err != nil {
		return nil, err
	}

	var rec *collection.Record
	if info, statErr := os.Stat(filepath.Join(c.Root, relPath)); statErr == nil {
		rec, err = c.Store.GetIfFresh(relPath, info.ModTime())
	} else {
		rec, err = c.Store.Get(relPath)
	}
	if err != nil {
		rec, err = c.Store.ForceRecompute(relPath, recomputer{ctx: ctx, c: c})
		if err != nil {
			return nil, err
		}
	}

	decorateFinished(c, rec, group)
	sortSubfolders(rec, ordering)
	return rec, nil
}

// decorateFinished sets each subfolder's Finished flag from group's
// recorded position, leaving it false (the zero value already stored) when
// group has never positioned there or no position store is configured.
func decorateFinished(c *Collection, rec *collection.Record, group string) {
	if group == "" || c.Position == nil {
		return
	}
	for i := range rec.Subfolders {
		pos, err := c.Position.Get(rec.Subfolders[i].Path, group)
		if err == nil {
			rec.Subfolders[i].Finished = pos.Finished
		}
	}
}

func sortSubfolders(rec *collection.Record, ordering collection.Ordering) {
	if ordering != collection.RecentFirst {
		return
	}
	sort.SliceStable(rec.Subfolders, func(i, j int) bool {
		a, b := rec.Subfolders[i].Modified, rec.Subfolders[j].Modified
		switch {
		case a == nil && b == nil:
			return false
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

// Search implements the search operation: folder entries whose path
// contains every whitespace-separated token in query, case- and
// locale-fold-insensitively.
func (s *Service) Search(_ context.Context, collectionID, query string) ([]collection.Entry, error) {
	c, err := s.collection(collectionID)
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(query)
	tokens := make([]string, len(fields))
	for i, f := range fields {
		tokens[i] = collation.FoldForSearch(f)
	}
	return c.Store.Search(tokens)
}

// Recent implements the recent operation: the limit most-recently-modified
// folders in collectionID.
func (s *Service) Recent(_ context.Context, collectionID string, limit int) ([]collection.Entry, error) {
	c, err := s.collection(collectionID)
	if err != nil {
		return nil, err
	}
	return c.Store.Recent(limit)
}
