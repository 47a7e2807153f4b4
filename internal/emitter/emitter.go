// Package emitter writes the per-article JSON documents and the aggregate
// index consumed by the client.
package emitter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/pmeyes/internal/article"
	ferrors "git.home.luguber.info/inful/pmeyes/internal/foundation/errors"
	"git.home.luguber.info/inful/pmeyes/internal/logfields"
	"git.home.luguber.info/inful/pmeyes/internal/storage"
)

// ErrDuplicateSlug indicates two source files resolved to the same slug.
var ErrDuplicateSlug = errors.New("duplicate slug")

// Index is the aggregate document.
type Index struct {
	Articles    []article.Summary `json:"articles"`
	FolderTree  []*FolderNode     `json:"folderTree"`
	LastUpdated time.Time         `json:"lastUpdated"`
}

// Stats summarizes one Emit call.
type Stats struct {
	Articles  int
	Written   int
	Unchanged int
	Pruned    int
}

// Emitter writes article documents into a directory it owns.
type Emitter struct {
	articlesDir string
	indexFile   string
	writeIndex  bool
	now         func() time.Time
	logger      *slog.Logger
}

// New creates an emitter. indexFile is ignored when writeIndex is false.
func New(articlesDir, indexFile string, writeIndex bool) *Emitter {
	return &Emitter{
		articlesDir: articlesDir,
		indexFile:   indexFile,
		writeIndex:  writeIndex,
		now:         time.Now,
		logger:      slog.Default(),
	}
}

// WithClock overrides the clock used for lastUpdated.
func (e *Emitter) WithClock(now func() time.Time) *Emitter {
	e.now = now
	return e
}

// WithLogger sets a custom logger.
func (e *Emitter) WithLogger(l *slog.Logger) *Emitter {
	e.logger = l
	return e
}

// Emit writes <slug>.json for every article, removes documents for slugs no
// longer produced and writes the index. Slugs must be unique.
func (e *Emitter) Emit(articles []*article.Article) (Stats, error) {
	stats := Stats{Articles: len(articles)}

	if err := CheckUniqueSlugs(articles); err != nil {
		return stats, err
	}
	if err := os.MkdirAll(e.articlesDir, 0o755); err != nil {
		return stats, ferrors.FileSystemError("cannot create output directory").WithCause(err).
			Fatal().WithContext("path", e.articlesDir).Build()
	}

	keep := make(map[string]struct{}, len(articles))
	for _, a := range articles {
		name := a.Slug + ".json"
		keep[name] = struct{}{}

		data, err := Marshal(a)
		if err != nil {
			return stats, fmt.Errorf("encode %s: %w", name, err)
		}
		written, err := storage.WriteFileIfChanged(filepath.Join(e.articlesDir, name), data, 0o644)
		if err != nil {
			return stats, ferrors.FileSystemError("cannot write article document").WithCause(err).
				Fatal().WithContext("path", name).Build()
		}
		if written {
			stats.Written++
			e.logger.Debug("Wrote article", logfields.Slug(a.Slug))
		} else {
			stats.Unchanged++
		}
	}

	pruned, err := e.prune(keep)
	stats.Pruned = pruned
	if err != nil {
		return stats, err
	}

	if e.writeIndex {
		if err := e.WriteIndex(articles); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// WriteIndex writes the aggregate index document.
func (e *Emitter) WriteIndex(articles []*article.Article) error {
	idx := Index{
		Articles:    make([]article.Summary, 0, len(articles)),
		FolderTree:  BuildFolderTree(articles),
		LastUpdated: e.now().UTC(),
	}
	for _, a := range articles {
		idx.Articles = append(idx.Articles, a.Summary())
	}
	data, err := Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := storage.WriteFileAtomic(e.indexFile, data, 0o644); err != nil {
		return ferrors.FileSystemError("cannot write index").WithCause(err).
			Fatal().WithContext("path", e.indexFile).Build()
	}
	return nil
}

func (e *Emitter) prune(keep map[string]struct{}) (int, error) {
	entries, err := os.ReadDir(e.articlesDir)
	if err != nil {
		return 0, fmt.Errorf("list output directory: %w", err)
	}
	pruned := 0
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if _, ok := keep[name]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(e.articlesDir, name)); err != nil {
			return pruned, fmt.Errorf("prune %s: %w", name, err)
		}
		pruned++
		e.logger.Info("Removed stale article document", logfields.Path(name))
	}
	return pruned, nil
}

// CheckUniqueSlugs returns a classified ErrDuplicateSlug naming both files
// for the first collision found.
func CheckUniqueSlugs(articles []*article.Article) error {
	seen := make(map[string]string, len(articles))
	for _, a := range articles {
		if prev, ok := seen[a.Slug]; ok {
			return ferrors.ContentError("two articles share a slug").WithCause(ErrDuplicateSlug).
				WithContext("slug", a.Slug).
				WithContext("files", []string{prev, a.FilePath}).
				Build()
		}
		seen[a.Slug] = a.FilePath
	}
	return nil
}

// Marshal encodes v as two-space indented JSON without HTML escaping and
// without a trailing newline.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
