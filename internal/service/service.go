// Package service composes the collection index, folder lister, position
// store, transcoder, transcoding cache, admission controller, and streaming
// adapters (C1-C10) behind the eleven operations an HTTP layer needs. It
// intentionally does no routing or wire-format work of its own — methods
// here take and return plain Go values, in the teacher's thin-facade-over-
// internal/store convention.
package service

import (
	"log/slog"

	"github.com/listenupapp/castshelf/internal/admission"
	"github.com/listenupapp/castshelf/internal/cache"
	"github.com/listenupapp/castshelf/internal/collection"
	"github.com/listenupapp/castshelf/internal/folder"
	"github.com/listenupapp/castshelf/internal/position"
	"github.com/listenupapp/castshelf/internal/transcode"
)

// Collection bundles one registered audiobook library: its filesystem root
// and the C3/C2/C5 instances that mirror it.
type Collection struct {
	ID       string
	Root     string
	Store    *collection.Store
	Lister   *folder.Lister
	Position *position.Store
}

// Info summarizes a collection for the list-collections operation.
type Info struct {
	ID string
}

// Service is the facade an external HTTP layer calls into. It owns no
// filesystem or subprocess state directly; everything is delegated to the
// components passed to New/AddCollection.
type Service struct {
	collections map[string]*Collection

	cache         *cache.Cache // nil when the transcoding cache is disabled
	transcoder    *transcode.Transcoder
	admission     *admission.Controller
	profiles      map[string]transcode.Profile
	cacheDisabled bool

	logger *slog.Logger
}

// New builds a Service. cache may be nil (equivalent to cacheDisabled=true);
// profiles maps quality names ("low", "medium", "high", "passthrough") to
// their transcode.Profile.
func New(transcoder *transcode.Transcoder, admission *admission.Controller, cch *cache.Cache, cacheDisabled bool, profiles map[string]transcode.Profile, logger *slog.Logger) *Service {
	return &Service{
		collections:   make(map[string]*Collection),
		cache:         cch,
		transcoder:    transcoder,
		admission:     admission,
		profiles:      profiles,
		cacheDisabled: cacheDisabled || cch == nil,
		logger:        logger,
	}
}

// AddCollection registers c under c.ID, so it can be addressed by
// collection-id in every other method.
func (s *Service) AddCollection(c *Collection) {
	s.collections[c.ID] = c
}

func (s *Service) collection(id string) (*Collection, error) {
	c, ok := s.collections[id]
	if !ok {
		return nil, collectionNotFound(id)
	}
	return c, nil
}

// ListCollections implements the list-collections operation: the ID of
// every registered collection, in no particular order. Info carries no
// version and no feature flags; TranscodingEnabled and CacheEnabled report
// those two flags separately, and nothing reports whether the
// download/archive endpoints are available.
func (s *Service) ListCollections() []Info {
	infos := make([]Info, 0, len(s.collections))
	for id := range s.collections {
		infos = append(infos, Info{ID: id})
	}
	return infos
}

// TranscodingEnabled reports whether a transcoder is configured. Without one,
// get-transcoded fails for every quality, passthrough included.
func (s *Service) TranscodingEnabled() bool { return s.transcoder != nil }

// CacheEnabled reports whether transcoded output is persisted between
// requests.
func (s *Service) CacheEnabled() bool { return !s.cacheDisabled }
