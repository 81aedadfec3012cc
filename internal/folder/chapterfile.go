package folder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/listenupapp/castshelf/internal/collection"
	"github.com/listenupapp/castshelf/internal/probe"
	"github.com/listenupapp/castshelf/internal/vpath"
)

// isChapterised reports whether an audio file should be presented as a
// subfolder of virtual chapter entries rather than a single file entry:
// either it carries native chapter markers, or it's long enough that the
// configured ChapteriseFromDuration threshold kicks in.
func (l *Lister) isChapterised(res *probe.Result) bool {
	if len(res.Chapters) > 0 {
		return true
	}
	threshold := l.Config.ChapteriseFromDuration
	if threshold <= 0 {
		return false
	}
	return res.DurationMS >= threshold.Milliseconds()
}

// listFile builds the folder record for a chapterised audio file addressed
// directly (list_dir_file): the file itself becomes a "folder" whose entries
// are its chapters, each given a synthetic vpath.
func (l *Lister) listFile(ctx context.Context, base, rel string) (*collection.Record, error) {
	full := filepath.Join(base, rel)
	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}

	res, err := l.Prober.Probe(ctx, full)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", rel, err)
	}

	chapters := res.Chapters
	if len(chapters) == 0 {
		chapters = []probe.Chapter{{
			N:       1,
			Title:   strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel)),
			StartMS: 0,
			EndMS:   res.DurationMS,
		}}
	}

	files := make([]collection.File, 0, len(chapters))
	for _, ch := range chapters {
		displayName, encodedPath := vpath.Encode(rel, vpath.Chapter{
			Num:     ch.N,
			Title:   ch.Title,
			StartMS: ch.StartMS,
			EndMS:   ch.EndMS,
		}, false)

		chapterMS := ch.EndMS - ch.StartMS
		if chapterMS < 0 {
			chapterMS = 0
		}
		durationS := uint32(chapterMS / 1000)
		sectionDurationMS := uint64(chapterMS)

		files = append(files, collection.File{
			Name: displayName,
			Path: encodedPath,
			Mime: audioMime(filepath.Ext(rel)),
			Meta: &collection.FileMeta{
				DurationS:   durationS,
				BitrateKbps: uint32(res.BitrateKbps),
				Tags:        res.Tags,
			},
			Section: &collection.Section{StartMS: uint64(ch.StartMS), DurationMS: &sectionDurationMS},
		})
	}

	rec := &collection.Record{
		Files:      files,
		IsFile:     true,
		Modified:   info.ModTime(),
		TotalTimeS: float64(res.DurationMS) / 1000,
		Tags:       res.Tags,
	}

	if res.HasCover {
		rec.Cover = &collection.Asset{Path: rel, Mime: "image/jpeg"}
	}
	if res.HasDescription {
		rec.Description = &collection.Asset{Path: rel, Mime: "text/plain"}
	}

	return rec, nil
}
