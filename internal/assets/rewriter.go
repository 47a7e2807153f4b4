// Package assets copies images referenced by articles into the public asset
// root and rewrites the references to absolute public URLs.
package assets

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	ferrors "git.home.luguber.info/inful/pmeyes/internal/foundation/errors"
	"git.home.luguber.info/inful/pmeyes/internal/logfields"
	"git.home.luguber.info/inful/pmeyes/internal/markdown"
	"git.home.luguber.info/inful/pmeyes/internal/storage"
)

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)

var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {},
	".webp": {}, ".bmp": {}, ".ico": {}, ".avif": {},
}

// IsImage reports whether name carries a recognized image extension.
func IsImage(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IsRelative reports whether an image destination is a relative file
// reference: no scheme, no leading slash and not a fragment.
func IsRelative(dest string) bool {
	switch {
	case dest == "":
		return false
	case strings.HasPrefix(dest, "/"), strings.HasPrefix(dest, `\`), strings.HasPrefix(dest, "#"):
		return false
	case schemePattern.MatchString(dest):
		return false
	}
	return true
}

// PublicURL builds the public URL for a slash-separated path relative to the
// asset root, percent-encoding each NFC-normalized segment independently.
func PublicURL(prefix, rel string) string {
	segments := strings.Split(strings.Trim(rel, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(norm.NFC.String(s))
	}
	return strings.TrimRight(prefix, "/") + "/" + strings.Join(segments, "/")
}

// Result describes one Rewrite call.
type Result struct {
	Body      string
	Copied    int // references whose asset is present under the asset root
	Written   int // files whose bytes were actually (re)written
	Skipped   int // relative references left untouched
	Rewritten []Rewrite
	Failures  []error // one classified error per skipped reference
}

// Rewrite records one reference change.
type Rewrite struct {
	From string
	To   string
}

// Rewriter rewrites relative image references inside article bodies.
type Rewriter struct {
	contentRoot string
	assetDir    string
	urlPrefix   string
	logger      *slog.Logger
}

// NewRewriter creates a rewriter. Assets keep their path relative to
// contentRoot beneath assetDir and are addressed under urlPrefix.
func NewRewriter(contentRoot, assetDir, urlPrefix string) *Rewriter {
	return &Rewriter{
		contentRoot: contentRoot,
		assetDir:    assetDir,
		urlPrefix:   urlPrefix,
		logger:      slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (r *Rewriter) WithLogger(l *slog.Logger) *Rewriter {
	r.logger = l
	return r
}

// Rewrite copies every resolvable relative image referenced by body, which
// belongs to an article stored in articleDir, and returns the body with those
// references replaced by public URLs. Unresolvable references are left as-is.
func (r *Rewriter) Rewrite(body, articleDir string) (Result, error) {
	res := Result{Body: body}
	src := []byte(body)

	var edits []markdown.Edit
	for _, ref := range markdown.ImageRefs(src) {
		if !IsRelative(ref.Destination) {
			continue
		}
		publicURL, written, err := r.materialize(ref.Destination, articleDir)
		if err != nil {
			res.Skipped++
			res.Failures = append(res.Failures, ferrors.AssetError("image reference left unrewritten").
				WithCause(err).Warning().WithContext("asset", ref.Destination).Build())
			r.logger.Warn("Image reference left unrewritten",
				logfields.Asset(ref.Destination), logfields.Path(articleDir), logfields.Error(err))
			continue
		}
		res.Copied++
		if written {
			res.Written++
		}
		res.Rewritten = append(res.Rewritten, Rewrite{From: ref.Destination, To: publicURL})
		edits = append(edits, markdown.Edit{Start: ref.Start, End: ref.End, Replacement: []byte(publicURL)})
	}

	out, err := markdown.ApplyEdits(src, edits)
	if err != nil {
		return Result{}, fmt.Errorf("apply asset rewrites: %w", err)
	}
	res.Body = string(out)
	return res, nil
}

// materialize resolves dest, copies the file and returns its public URL.
func (r *Rewriter) materialize(dest, articleDir string) (string, bool, error) {
	target, suffix := splitSuffix(dest)
	if decoded, err := url.PathUnescape(target); err == nil {
		target = decoded
	}

	resolved := filepath.Join(articleDir, filepath.FromSlash(target))
	if !storage.Within(r.contentRoot, resolved) {
		return "", false, fmt.Errorf("%w: %s", storage.ErrPathEscapesRoot, dest)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", false, err
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("%s is a directory", dest)
	}
	if !IsImage(resolved) {
		return "", false, fmt.Errorf("%s is not a recognized image type", dest)
	}

	rel, err := relativeTo(r.contentRoot, resolved)
	if err != nil {
		return "", false, err
	}
	rel = norm.NFC.String(rel)

	dst := filepath.Join(r.assetDir, filepath.FromSlash(rel))
	written, err := storage.CopyFileIfChanged(resolved, dst)
	if err != nil {
		return "", false, err
	}
	if written {
		r.logger.Debug("Copied asset", logfields.Asset(rel))
	}
	return PublicURL(r.urlPrefix, rel) + suffix, written, nil
}

func relativeTo(root, p string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRoot, abs)
	if err != nil {
		return "", err
	}
	return path.Clean(filepath.ToSlash(rel)), nil
}

// splitSuffix separates a trailing ?query or #fragment from a destination.
func splitSuffix(dest string) (string, string) {
	if i := strings.IndexAny(dest, "?#"); i >= 0 {
		return dest[:i], dest[i:]
	}
	return dest, ""
}
