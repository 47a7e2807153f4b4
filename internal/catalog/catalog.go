// Package catalog serves queries over the emitted index and article
// documents. A Catalog is constructed once per process with its storage
// paths; Load replaces the in-memory state atomically.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/pmeyes/internal/article"
	"git.home.luguber.info/inful/pmeyes/internal/emitter"
)

// MaxSearchResults caps Search.
const MaxSearchResults = 50

// DefaultRelated is the Related limit used when limit <= 0.
const DefaultRelated = 3

// ErrNotFound is returned for unknown slugs.
var ErrNotFound = errors.New("article not found")

// Filters narrows Search. Zero values do not filter.
type Filters struct {
	Query  string
	Tags   []string // any-of
	Folder string   // exact or descendant
}

type state struct {
	articles    []article.Summary
	tree        []*emitter.FolderNode
	bySlug      map[string]int
	lastUpdated time.Time
}

// Catalog answers article queries.
type Catalog struct {
	indexFile   string
	articlesDir string

	mu    sync.RWMutex
	state *state
}

// New creates an empty catalog reading from the given paths.
func New(indexFile, articlesDir string) *Catalog {
	return &Catalog{indexFile: indexFile, articlesDir: articlesDir, state: &state{bySlug: map[string]int{}}}
}

// Load reads the index document and swaps it in. On error the previous
// state is kept.
func (c *Catalog) Load() error {
	data, err := os.ReadFile(c.indexFile)
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	var idx emitter.Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("decode index %s: %w", c.indexFile, err)
	}

	next := &state{
		articles:    idx.Articles,
		tree:        idx.FolderTree,
		bySlug:      make(map[string]int, len(idx.Articles)),
		lastUpdated: idx.LastUpdated,
	}
	if next.articles == nil {
		next.articles = []article.Summary{}
	}
	if next.tree == nil {
		next.tree = []*emitter.FolderNode{}
	}
	for i, a := range next.articles {
		if a.Tags == nil {
			next.articles[i].Tags = []string{}
		}
		next.bySlug[a.Slug] = i
	}

	c.mu.Lock()
	c.state = next
	c.mu.Unlock()
	return nil
}

func (c *Catalog) current() *state {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// All returns every article summary in index order.
func (c *Catalog) All() []article.Summary {
	return slices.Clone(c.current().articles)
}

// FolderTree returns the folder tree. Callers must not modify it.
func (c *Catalog) FolderTree() []*emitter.FolderNode {
	return c.current().tree
}

// LastUpdated returns the index timestamp.
func (c *Catalog) LastUpdated() time.Time {
	return c.current().lastUpdated
}

// BySlug reads the full article document.
func (c *Catalog) BySlug(slug string) (*article.Article, error) {
	if _, ok := c.current().bySlug[slug]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	data, err := os.ReadFile(filepath.Join(c.articlesDir, slug+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	if err != nil {
		return nil, err
	}
	var a article.Article
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode article %s: %w", slug, err)
	}
	return &a, nil
}

// Search filters by case-insensitive query on title or excerpt, any of the
// tags and folder (exact or descendant), returning at most MaxSearchResults.
func (c *Catalog) Search(f Filters) []article.Summary {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := []article.Summary{}
	for _, a := range c.current().articles {
		if query != "" &&
			!strings.Contains(strings.ToLower(a.Title), query) &&
			!strings.Contains(strings.ToLower(a.Excerpt), query) {
			continue
		}
		if len(f.Tags) > 0 && !hasAnyTag(a, f.Tags) {
			continue
		}
		if f.Folder != "" && a.Folder != f.Folder && !strings.HasPrefix(a.Folder, f.Folder+"/") {
			continue
		}
		out = append(out, a)
		if len(out) == MaxSearchResults {
			break
		}
	}
	return out
}

// ByTag returns articles carrying tag.
func (c *Catalog) ByTag(tag string) []article.Summary {
	out := []article.Summary{}
	for _, a := range c.current().articles {
		if slices.Contains(a.Tags, tag) {
			out = append(out, a)
		}
	}
	return out
}

// ByFolder returns articles whose folder is exactly folder.
func (c *Catalog) ByFolder(folder string) []article.Summary {
	out := []article.Summary{}
	for _, a := range c.current().articles {
		if a.Folder == folder {
			out = append(out, a)
		}
	}
	return out
}

// Tags returns the sorted set of all tags.
func (c *Catalog) Tags() []string {
	seen := map[string]struct{}{}
	for _, a := range c.current().articles {
		for _, t := range a.Tags {
			seen[t] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Folders returns the sorted set of non-empty folders.
func (c *Catalog) Folders() []string {
	seen := map[string]struct{}{}
	for _, a := range c.current().articles {
		if a.Folder != "" {
			seen[a.Folder] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Related returns up to limit other articles sharing at least one tag with
// slug, in index order.
func (c *Catalog) Related(slug string, limit int) []article.Summary {
	if limit <= 0 {
		limit = DefaultRelated
	}
	st := c.current()
	out := []article.Summary{}
	i, ok := st.bySlug[slug]
	if !ok {
		return out
	}
	current := st.articles[i]
	for _, a := range st.articles {
		if a.Slug == slug || !hasAnyTag(a, current.Tags) {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out
}

func hasAnyTag(a article.Summary, tags []string) bool {
	for _, t := range tags {
		if slices.Contains(a.Tags, t) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
