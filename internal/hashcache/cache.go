// Package hashcache decides whether the article pipeline must run by comparing
// the content root against the cache document written by the previous run.
package hashcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/pmeyes/internal/docs"
	"git.home.luguber.info/inful/pmeyes/internal/storage"
)

// FileRecord is the identity of one source file at the time of a run.
type FileRecord struct {
	Hash  string `json:"hash"`
	Mtime int64  `json:"mtime"` // milliseconds since the Unix epoch
}

// Document is the persisted cache.
type Document struct {
	Files        map[string]FileRecord `json:"files"`
	LastUpdated  time.Time             `json:"lastUpdated"`
	ArticleCount int                   `json:"articleCount"`
}

// Reason explains a regeneration decision.
type Reason string

const (
	ReasonUpToDate      Reason = "up_to_date"
	ReasonCacheMissing  Reason = "cache_missing"
	ReasonCacheCorrupt  Reason = "cache_corrupt"
	ReasonOutputMissing Reason = "output_missing"
	ReasonFileAdded     Reason = "file_added"
	ReasonFileModified  Reason = "file_modified"
	ReasonFileDeleted   Reason = "file_deleted"
	ReasonJSONMissing   Reason = "json_missing"
	ReasonIndexMissing  Reason = "index_missing"
	ReasonCheckFailed   Reason = "check_failed"
)

// Decision is the result of Check.
type Decision struct {
	Regenerate bool
	Reason     Reason
	Path       string // file or document that triggered the decision, if any
}

// SlugFunc returns the output slug for a source file.
type SlugFunc func(docs.SourceFile) (string, error)

// Cache reads and writes the cache document at a fixed path.
type Cache struct {
	path      string
	indexFile string
	now       func() time.Time
}

// New creates a cache backed by the JSON document at path.
func New(path string) *Cache {
	return &Cache{path: path, now: time.Now}
}

// WithIndexFile makes Check require the aggregate index at path.
func (c *Cache) WithIndexFile(path string) *Cache {
	c.indexFile = path
	return c
}

// Path returns the cache document location.
func (c *Cache) Path() string { return c.path }

// Load reads the cache document. A missing or undecodable document is an error.
func (c *Cache) Load() (*Document, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode cache %s: %w", c.path, err)
	}
	if doc.Files == nil {
		return nil, fmt.Errorf("decode cache %s: missing files map", c.path)
	}
	return &doc, nil
}

// Check compares files against the cache document. Any failure while checking
// results in a regeneration decision rather than an error.
func (c *Cache) Check(files []docs.SourceFile, outputDir string, slugOf SlugFunc) Decision {
	doc, err := c.Load()
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Decision{Regenerate: true, Reason: ReasonCacheMissing, Path: c.path}
	case err != nil:
		return Decision{Regenerate: true, Reason: ReasonCacheCorrupt, Path: c.path}
	}

	if info, err := os.Stat(outputDir); err != nil || !info.IsDir() {
		return Decision{Regenerate: true, Reason: ReasonOutputMissing, Path: outputDir}
	}

	current := make(map[string]struct{}, len(files))
	for _, f := range files {
		current[f.RelativePath] = struct{}{}
		cached, ok := doc.Files[f.RelativePath]
		if !ok {
			return Decision{Regenerate: true, Reason: ReasonFileAdded, Path: f.RelativePath}
		}
		changed, err := modified(f.Path, cached)
		if err != nil {
			return Decision{Regenerate: true, Reason: ReasonCheckFailed, Path: f.RelativePath}
		}
		if changed {
			return Decision{Regenerate: true, Reason: ReasonFileModified, Path: f.RelativePath}
		}
	}

	for rel := range doc.Files {
		if _, ok := current[rel]; !ok {
			return Decision{Regenerate: true, Reason: ReasonFileDeleted, Path: rel}
		}
	}

	for _, f := range files {
		slug, err := slugOf(f)
		if err != nil {
			return Decision{Regenerate: true, Reason: ReasonCheckFailed, Path: f.RelativePath}
		}
		name := slug + ".json"
		if !storage.Exists(filepath.Join(outputDir, name)) {
			return Decision{Regenerate: true, Reason: ReasonJSONMissing, Path: name}
		}
	}

	if c.indexFile != "" && !storage.Exists(c.indexFile) {
		return Decision{Regenerate: true, Reason: ReasonIndexMissing, Path: c.indexFile}
	}

	return Decision{Reason: ReasonUpToDate}
}

// modified reports a change when mtime differs, and otherwise compares hashes.
func modified(path string, cached FileRecord) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if info.ModTime().UnixMilli() != cached.Mtime {
		return true, nil
	}
	hash, err := docs.FileHash(path)
	if err != nil {
		return false, err
	}
	return hash != cached.Hash, nil
}

// Record builds the FileRecord for a file whose content has already been read.
func Record(path string, content []byte) (FileRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileRecord{}, err
	}
	return FileRecord{Hash: docs.ContentHash(content), Mtime: info.ModTime().UnixMilli()}, nil
}

// Save writes the cache document for a completed run.
func (c *Cache) Save(files map[string]FileRecord, articleCount int) error {
	if files == nil {
		files = map[string]FileRecord{}
	}
	doc := Document{
		Files:        files,
		LastUpdated:  c.now().UTC(),
		ArticleCount: articleCount,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	return storage.WriteFileAtomic(c.path, data, 0o644)
}
