package imagecompress

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/pmeyes/internal/assets"
	"git.home.luguber.info/inful/pmeyes/internal/events"
	"git.home.luguber.info/inful/pmeyes/internal/logfields"
	"git.home.luguber.info/inful/pmeyes/internal/storage"
)

// renameReferences replaces the old public URL with the new one in every
// article document and the index. It returns the number of files rewritten.
func (c *Compressor) renameReferences(ctx context.Context, log *slog.Logger, oldRel, newRel string) (int, error) {
	oldURL := assets.PublicURL(c.urlPrefix, oldRel)
	newURL := assets.PublicURL(c.urlPrefix, newRel)

	targets, err := c.documents()
	if err != nil {
		return 0, err
	}

	rewritten := 0
	for _, p := range targets {
		data, err := os.ReadFile(p)
		if err != nil {
			return rewritten, fmt.Errorf("read %s: %w", p, err)
		}
		updated, n := ReplaceURL(string(data), oldURL, newURL)
		if n == 0 {
			continue
		}
		if err := storage.WriteFileAtomic(p, []byte(updated), 0o644); err != nil {
			return rewritten, err
		}
		rewritten++
		log.Debug("Rewrote asset references", logfields.Path(p), logfields.Count(n))
	}

	log.Info("Asset renamed", logfields.URL(newURL), "old_url", oldURL, logfields.Count(rewritten))
	if err := c.publisher.Publish(ctx, events.TypeAssetRenamed, events.AssetRenamed{OldURL: oldURL, NewURL: newURL}); err != nil {
		log.Warn("Failed to publish event", "event", events.TypeAssetRenamed, logfields.Error(err))
	}
	return rewritten, nil
}

// documents lists the JSON files that may reference assets.
func (c *Compressor) documents() ([]string, error) {
	var out []string
	entries, err := os.ReadDir(c.articlesDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("list %s: %w", c.articlesDir, err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".json") {
			out = append(out, filepath.Join(c.articlesDir, e.Name()))
		}
	}
	if c.indexFile != "" && storage.Exists(c.indexFile) {
		out = append(out, c.indexFile)
	}
	return out, nil
}

// ReplaceURL substitutes every complete occurrence of oldURL. An occurrence
// followed by a character that could continue a URL path is a different URL
// and is left alone.
func ReplaceURL(s, oldURL, newURL string) (string, int) {
	if oldURL == "" {
		return s, 0
	}
	var b strings.Builder
	n := 0
	for {
		i := strings.Index(s, oldURL)
		if i < 0 {
			b.WriteString(s)
			break
		}
		end := i + len(oldURL)
		if end < len(s) && continuesPath(s[end]) {
			b.WriteString(s[:end])
			s = s[end:]
			continue
		}
		b.WriteString(s[:i])
		b.WriteString(newURL)
		s = s[end:]
		n++
	}
	return b.String(), n
}

func continuesPath(ch byte) bool {
	switch {
	case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		return true
	}
	return strings.IndexByte("-._~%/+=:@&$", ch) >= 0
}
