// Package folder implements the folder lister (C2): given a base directory
// and a relative path, it enumerates one directory's children, classifies
// them, and produces a collection.Record — handling the two special cases of
// a chapterised audio file presenting as a folder of chapters, and a
// CD/disc-subfolder structure collapsing into its parent.
package folder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/listenupapp/castshelf/internal/collation"
	"github.com/listenupapp/castshelf/internal/collection"
	"github.com/listenupapp/castshelf/internal/config"
	"github.com/listenupapp/castshelf/internal/probe"
)

// Prober extracts technical metadata from one audio file. Satisfied by
// *probe.Prober; an interface here so tests can fake it cheaply.
type Prober interface {
	Probe(ctx context.Context, path string) (*probe.Result, error)
}

// Lister builds collection.Record values by reading one directory at a time
// off disk, on demand. It holds no cache of its own — internal/collection
// owns caching and internal/updater owns invalidation.
type Lister struct {
	Prober     Prober
	Config     config.FolderConfig
	Comparator *collation.Comparator

	cdPattern *regexp.Regexp
}

// New builds a Lister. If cfg.CDFolderPattern doesn't compile, CD-folder
// collapse falls back to the built-in cd/disc/disk-prefix heuristic.
func New(prober Prober, cfg config.FolderConfig, cmp *collation.Comparator) *Lister {
	l := &Lister{Prober: prober, Config: cfg, Comparator: cmp}
	if cfg.CDFolderPattern != "" {
		if re, err := regexp.Compile(cfg.CDFolderPattern); err == nil {
			l.cdPattern = re
		}
	}
	return l
}

// ListDir builds the record for base/rel. rel addresses either a directory
// or a chapterised audio file (list_dir_file); both are handled here so
// callers don't need to know which case applies ahead of time.
func (l *Lister) ListDir(ctx context.Context, base, rel string) (*collection.Record, error) {
	full := filepath.Join(base, rel)
	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}

	if !info.IsDir() {
		res, err := l.Prober.Probe(ctx, full)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", rel, err)
		}
		if !l.isChapterised(res) {
			return nil, fmt.Errorf("%s is not a directory and has no chapters to list", rel)
		}
		return l.listFile(ctx, base, rel)
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", rel, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var (
		subdirNames     []string
		audioNames      []string
		coverName       string
		descriptionName string
		playlistName    string
	)

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			subdirNames = append(subdirNames, name)
			continue
		}
		ext := filepath.Ext(name)
		switch {
		case isAudioExt(ext):
			audioNames = append(audioNames, name)
		case coverName == "" && firstOK(coverMime(ext)):
			coverName = name
		case descriptionName == "" && firstOK(descriptionMime(ext)):
			descriptionName = name
		case playlistName == "" && isPlaylistExt(ext):
			playlistName = name
		}
	}

	files, subfolders, err := l.classifyAudio(ctx, base, rel, audioNames)
	if err != nil {
		return nil, err
	}

	collapsedCD, err := l.collapseCDFolders(ctx, base, rel, &subdirNames)
	if err != nil {
		return nil, err
	}
	files = append(files, collapsedCD...)

	subfolderRecs := make([]collection.Subfolder, 0, len(subdirNames)+len(subfolders))
	for _, name := range subdirNames {
		sf, err := l.subfolderEntry(base, rel, name)
		if err != nil {
			return nil, err
		}
		subfolderRecs = append(subfolderRecs, sf)
	}
	subfolderRecs = append(subfolderRecs, subfolders...)

	if playlistName != "" {
		order, err := parsePlaylist(full, filepath.Join(full, playlistName))
		if err == nil {
			names := make([]string, len(files))
			for i, f := range files {
				names[i] = filepath.Base(f.Path)
			}
			ordered := reorderByPlaylist(names, order)
			files = reorderFiles(files, ordered)
		}
	}

	rec := &collection.Record{
		Files:      files,
		Subfolders: subfolderRecs,
		Modified:   info.ModTime(),
	}

	if coverName != "" {
		mime, _ := coverMime(filepath.Ext(coverName))
		rec.Cover = &collection.Asset{Path: filepath.Join(rel, coverName), Mime: mime}
	}
	if descriptionName != "" {
		mime, _ := descriptionMime(filepath.Ext(descriptionName))
		rec.Description = &collection.Asset{Path: filepath.Join(rel, descriptionName), Mime: mime}
	}

	// Single-subfolder collapse: an album folder containing nothing but one
	// chapterised-file subfolder presents identically to that file itself.
	if len(rec.Files) == 0 && len(rec.Subfolders) == 1 && rec.Subfolders[0].IsFile && rec.Cover == nil && rec.Description == nil {
		inner, err := l.listFile(ctx, base, rec.Subfolders[0].Path)
		if err == nil {
			return inner, nil
		}
	}

	factorCommonTags(rec)
	l.order(rec)
	rec.TotalTimeS = totalTime(rec.Files)

	return rec, nil
}

func (l *Lister) classifyAudio(ctx context.Context, base, rel string, names []string) ([]collection.File, []collection.Subfolder, error) {
	var files []collection.File
	var subfolders []collection.Subfolder

	for _, name := range names {
		childRel := filepath.Join(rel, name)
		full := filepath.Join(base, childRel)

		res, err := l.Prober.Probe(ctx, full)
		if err != nil {
			// Unreadable audio file: surface as a plain file entry with no
			// technical metadata rather than failing the whole listing.
			files = append(files, collection.File{Name: name, Path: childRel, Mime: audioMime(filepath.Ext(name))})
			continue
		}

		if l.isChapterised(res) {
			info, statErr := os.Stat(full)
			var modified *time.Time
			if statErr == nil {
				m := info.ModTime()
				modified = &m
			}
			subfolders = append(subfolders, collection.Subfolder{
				Name:     name,
				Path:     childRel,
				IsFile:   true,
				Modified: modified,
			})
			continue
		}

		files = append(files, collection.File{
			Name: name,
			Path: childRel,
			Mime: audioMime(filepath.Ext(name)),
			Meta: &collection.FileMeta{
				DurationS:   uint32(res.DurationMS / 1000),
				BitrateKbps: uint32(res.BitrateKbps),
				Tags:        res.Tags,
			},
		})
	}

	return files, subfolders, nil
}

// collapseCDFolders detects disc/CD subfolders among subdirNames, removes
// them from it, and returns their audio contents as file entries of the
// parent, renamed "<cd-folder-name> <original-filename>".
func (l *Lister) collapseCDFolders(ctx context.Context, base, rel string, subdirNames *[]string) ([]collection.File, error) {
	var cdDirs []string
	var rest []string
	for _, name := range *subdirNames {
		if matchesCDPattern(l.cdPattern, name) {
			cdDirs = append(cdDirs, name)
		} else {
			rest = append(rest, name)
		}
	}
	*subdirNames = rest

	if len(cdDirs) == 0 {
		return nil, nil
	}
	sort.Strings(cdDirs)

	var files []collection.File
	for _, cdName := range cdDirs {
		cdFull := filepath.Join(base, rel, cdName)
		entries, err := os.ReadDir(cdFull)
		if err != nil {
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, e := range entries {
			if e.IsDir() || !isAudioExt(filepath.Ext(e.Name())) {
				continue
			}
			childRel := filepath.Join(rel, cdName, e.Name())
			res, err := l.Prober.Probe(ctx, filepath.Join(base, childRel))
			file := collection.File{
				Name: cdName + " " + e.Name(),
				Path: childRel,
				Mime: audioMime(filepath.Ext(e.Name())),
			}
			if err == nil {
				file.Meta = &collection.FileMeta{
					DurationS:   uint32(res.DurationMS / 1000),
					BitrateKbps: uint32(res.BitrateKbps),
					Tags:        res.Tags,
				}
			}
			files = append(files, file)
		}
	}
	return files, nil
}

func (l *Lister) subfolderEntry(base, rel, name string) (collection.Subfolder, error) {
	full := filepath.Join(base, rel, name)
	info, err := os.Stat(full)
	if err != nil {
		return collection.Subfolder{}, fmt.Errorf("stat %s: %w", filepath.Join(rel, name), err)
	}
	modified := info.ModTime()
	return collection.Subfolder{
		Name:     name,
		Path:     filepath.Join(rel, name),
		Modified: &modified,
	}, nil
}

// factorCommonTags moves tag key/value pairs shared by every file in rec
// into rec.Tags, removing them from each file's own tag map.
func factorCommonTags(rec *collection.Record) {
	if len(rec.Files) < 2 {
		return
	}

	var common map[string]string
	for _, f := range rec.Files {
		if f.Meta == nil {
			return
		}
		if common == nil {
			common = make(map[string]string, len(f.Meta.Tags))
			for k, v := range f.Meta.Tags {
				common[k] = v
			}
			continue
		}
		for k, v := range common {
			if f.Meta.Tags[k] != v {
				delete(common, k)
			}
		}
	}
	if len(common) == 0 {
		return
	}

	if rec.Tags == nil {
		rec.Tags = make(map[string]string, len(common))
	}
	for k, v := range common {
		rec.Tags[k] = v
	}
	for i := range rec.Files {
		if rec.Files[i].Meta == nil {
			continue
		}
		for k := range common {
			delete(rec.Files[i].Meta.Tags, k)
		}
	}
}

func (l *Lister) order(rec *collection.Record) {
	if l.Comparator != nil {
		sort.SliceStable(rec.Files, func(i, j int) bool {
			return l.Comparator.Less(rec.Files[i].Name, rec.Files[j].Name)
		})
		sort.SliceStable(rec.Subfolders, func(i, j int) bool {
			return l.Comparator.Less(rec.Subfolders[i].Name, rec.Subfolders[j].Name)
		})
	}
}

func totalTime(files []collection.File) float64 {
	var total float64
	for _, f := range files {
		if f.Meta != nil {
			total += float64(f.Meta.DurationS)
		}
	}
	return total
}

// reorderFiles reorders files to match the order of orderedNames (base
// filenames); files whose name isn't found keep their relative order at the end.
func reorderFiles(files []collection.File, orderedNames []string) []collection.File {
	byName := make(map[string]collection.File, len(files))
	for _, f := range files {
		byName[filepath.Base(f.Path)] = f
	}
	result := make([]collection.File, 0, len(files))
	seen := make(map[string]bool, len(orderedNames))
	for _, name := range orderedNames {
		if f, ok := byName[name]; ok && !seen[name] {
			result = append(result, f)
			seen[name] = true
		}
	}
	for _, f := range files {
		if !seen[filepath.Base(f.Path)] {
			result = append(result, f)
		}
	}
	return result
}
