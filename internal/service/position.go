package service

import (
	"context"
	"time"

	"github.com/listenupapp/castshelf/internal/position"
)

// PositionInsert is the decoded body of an insert-position request.
type PositionInsert struct {
	Collection string
	Folder     string
	File       string
	Group      string
	OffsetMS   int64
	Finished   bool
	Timestamp  time.Time
}

// InsertPosition implements the insert-position operation. The returned
// error is position.ErrIgnoredPosition (not a failure) when in.Timestamp is
// not newer than the already-stored position for that group — the insert
// was a stale retry and the stored position is returned unchanged.
func (s *Service) InsertPosition(_ context.Context, in PositionInsert) (position.Position, error) {
	c, err := s.collection(in.Collection)
	if err != nil {
		return position.Position{}, err
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return c.Position.SetWithTimestamp(in.Folder, in.File, in.Group, in.OffsetMS, in.Finished, ts)
}

// GetPosition implements the get-position operation.
//
//   - collectionID and path both set, recursive=false: the single position
//     for that folder (position.Store.Get).
//   - collectionID set, path set, recursive=true: every position recorded
//     under that path prefix (position.Store.ListUnder).
//   - collectionID set, path empty: every position in that collection.
//
// onlyFinished restricts either list form to folders marked Finished.
func (s *Service) GetPosition(_ context.Context, group, collectionID, path string, recursive, onlyFinished bool) (*position.Position, []position.Entry, error) {
	c, err := s.collection(collectionID)
	if err != nil {
		return nil, nil, err
	}

	if path != "" && !recursive {
		pos, err := c.Position.Get(path, group)
		if err != nil {
			return nil, nil, err
		}
		return &pos, nil, nil
	}

	entries, err := c.Position.ListUnder(path, group, onlyFinished)
	if err != nil {
		return nil, nil, err
	}
	return nil, entries, nil
}

// GetLatestFolder returns the folder group was last positioned in within
// collectionID, supporting a "resume where I left off" client flow that
// doesn't already know the folder path.
func (s *Service) GetLatestFolder(_ context.Context, collectionID, group string) (string, error) {
	c, err := s.collection(collectionID)
	if err != nil {
		return "", err
	}
	return c.Position.LatestFolder(group)
}
