package service

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/listenupapp/castshelf/internal/apperr"
	"github.com/listenupapp/castshelf/internal/probe"
	"github.com/listenupapp/castshelf/internal/vpath"
)

type assetKind int

const (
	assetCover assetKind = iota
	assetDescription
)

func (k assetKind) String() string {
	if k == assetCover {
		return "cover"
	}
	return "description"
}

func extractAsset(res *probe.Result, kind assetKind) ([]byte, error) {
	if kind == assetCover {
		return res.ExtractCover()
	}
	return res.ExtractDescription()
}

// GetCover implements the get-cover operation: path may name a folder
// (its stored cover asset is returned) or an individual audio file (its
// embedded cover art is extracted directly).
func (s *Service) GetCover(ctx context.Context, collectionID, path string) ([]byte, string, error) {
	return s.getAsset(ctx, collectionID, path, assetCover)
}

// GetDescription implements the get-description operation; see GetCover.
func (s *Service) GetDescription(ctx context.Context, collectionID, path string) ([]byte, string, error) {
	return s.getAsset(ctx, collectionID, path, assetDescription)
}

func (s *Service) getAsset(ctx context.Context, collectionID, path string, kind assetKind) ([]byte, string, error) {
	c, err := s.collection(collectionID)
	if err != nil {
		return nil, "", err
	}

	relPath, _ := vpath.Decode(path)
	full := filepath.Join(c.Root, relPath)

	if info, statErr := os.Stat(full); statErr == nil && info.Mode().IsRegular() {
		if res, probeErr := c.Lister.Prober.Probe(ctx, full); probeErr == nil {
			if data, extractErr := extractAsset(res, kind); extractErr == nil && len(data) > 0 {
				return data, http.DetectContentType(data), nil
			}
		}
		// Not embedded in the file itself: fall back to the containing
		// folder's stored asset.
		relPath = filepath.Dir(relPath)
		if relPath == "." {
			relPath = ""
		}
	}

	rec, err := c.Store.Get(relPath)
	if err != nil {
		return nil, "", err
	}

	asset := rec.Cover
	if kind == assetDescription {
		asset = rec.Description
	}
	if asset == nil {
		return nil, "", apperr.NotFoundf("no %s for this folder", kind)
	}

	data, err := os.ReadFile(filepath.Join(c.Root, asset.Path))
	if err != nil {
		return nil, "", apperr.Internalf("read %s: %v", kind, err)
	}
	return data, asset.Mime, nil
}
