// Package article turns a markdown source file into an Article record:
// front-matter metadata with fallback defaults plus the markdown body.
package article

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"git.home.luguber.info/inful/pmeyes/internal/docs"
	"git.home.luguber.info/inful/pmeyes/internal/frontmatter"
	"git.home.luguber.info/inful/pmeyes/internal/logfields"
)

const (
	excerptRunes   = 150
	wordsPerMinute = 200
	dateLayout     = "2006-01-02"
)

var (
	// ErrInvalidFrontMatter indicates the front-matter block is not valid YAML
	// or holds a value of the wrong shape.
	ErrInvalidFrontMatter = errors.New("invalid front matter")

	// ErrInvalidSlug indicates a slug that cannot be used as a file name.
	ErrInvalidSlug = errors.New("invalid slug")
)

// Article is the per-article JSON document. Field order is the output order.
type Article struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Excerpt     string   `json:"excerpt"`
	PublishedAt string   `json:"publishedAt"`
	Tags        []string `json:"tags"`
	Slug        string   `json:"slug"`
	ReadingTime int      `json:"readingTime"`
	Folder      string   `json:"folder"`
	FilePath    string   `json:"filePath"`
	Content     string   `json:"content"`
	RawContent  string   `json:"rawContent"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
	Author      string   `json:"author,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
}

// Summary is the metadata-only form used in the aggregate index.
type Summary struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Excerpt     string   `json:"excerpt"`
	PublishedAt string   `json:"publishedAt"`
	Tags        []string `json:"tags"`
	Slug        string   `json:"slug"`
	ReadingTime int      `json:"readingTime"`
	Folder      string   `json:"folder"`
	FilePath    string   `json:"filePath"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
	Author      string   `json:"author,omitempty"`
}

// Summary drops the content fields.
func (a *Article) Summary() Summary {
	return Summary{
		ID:          a.ID,
		Title:       a.Title,
		Excerpt:     a.Excerpt,
		PublishedAt: a.PublishedAt,
		Tags:        a.Tags,
		Slug:        a.Slug,
		ReadingTime: a.ReadingTime,
		Folder:      a.Folder,
		FilePath:    a.FilePath,
		UpdatedAt:   a.UpdatedAt,
		Author:      a.Author,
	}
}

// Extractor parses source files into articles.
type Extractor struct {
	uncategorized string
	now           func() time.Time
}

// NewExtractor creates an extractor. Root-level articles get the uncategorized folder.
func NewExtractor(uncategorized string) *Extractor {
	return &Extractor{uncategorized: uncategorized, now: time.Now}
}

// WithClock overrides the clock used for the publishedAt default.
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}

// Extract builds an Article from a source file's raw bytes. Content holds the
// unmodified body; asset rewriting happens afterwards.
func (e *Extractor) Extract(file docs.SourceFile, raw []byte) (*Article, error) {
	fm, body := split(file, raw)

	var meta metadata
	if err := frontmatter.Decode(fm, &meta); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidFrontMatter, file.RelativePath, err)
	}

	slug := slugOf(file, meta)
	if err := validateSlug(slug); err != nil {
		return nil, fmt.Errorf("%s: %w", file.RelativePath, err)
	}

	bodyText := string(body)
	a := &Article{
		ID:          slug,
		Title:       firstNonEmpty(string(meta.Title), file.Name),
		Excerpt:     firstNonEmpty(string(meta.Excerpt), Excerpt(bodyText)),
		PublishedAt: firstNonEmpty(string(meta.PublishedAt), e.now().UTC().Format(dateLayout)),
		Tags:        tagsOf(meta),
		Slug:        slug,
		ReadingTime: int(meta.ReadingTime),
		Folder:      firstNonEmpty(file.Folder, e.uncategorized),
		FilePath:    file.RelativePath,
		Content:     bodyText,
		RawContent:  string(raw),
	}
	if a.ReadingTime <= 0 {
		a.ReadingTime = ReadingTime(bodyText)
	}

	fp, err := Fingerprint(fm, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidFrontMatter, file.RelativePath, err)
	}
	a.Fingerprint = fp
	return a, nil
}

// Slug returns the slug Extract would assign, without building the article.
func (e *Extractor) Slug(file docs.SourceFile, raw []byte) (string, error) {
	fm, _ := split(file, raw)
	var meta metadata
	if err := frontmatter.Decode(fm, &meta); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidFrontMatter, file.RelativePath, err)
	}
	return slugOf(file, meta), nil
}

// split treats a file with an unterminated front-matter block as all body.
func split(file docs.SourceFile, raw []byte) (fm, body []byte) {
	fm, body, _, err := frontmatter.Split(raw)
	if err != nil {
		slog.Warn("Front matter not terminated, treating whole file as body",
			logfields.Path(file.RelativePath), logfields.Error(err))
		return nil, raw
	}
	return fm, body
}

func slugOf(file docs.SourceFile, meta metadata) string {
	return firstNonEmpty(string(meta.Slug), file.Name)
}

func validateSlug(slug string) error {
	if slug == "." || slug == ".." || strings.ContainsAny(slug, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
	}
	return nil
}

func tagsOf(meta metadata) []string {
	if len(meta.Tags) == 0 {
		return []string{}
	}
	return []string(meta.Tags)
}

// Excerpt returns the first 150 characters of body followed by "...".
func Excerpt(body string) string {
	if utf8.RuneCountInString(body) <= excerptRunes {
		return body + "..."
	}
	return string([]rune(body)[:excerptRunes]) + "..."
}

// ReadingTime is ceil(words/200) over whitespace-delimited words.
func ReadingTime(body string) int {
	words := len(strings.Fields(body))
	return int(math.Ceil(float64(words) / wordsPerMinute))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
