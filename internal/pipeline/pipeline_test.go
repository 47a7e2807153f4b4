package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pmeyes/internal/config"
	"git.home.luguber.info/inful/pmeyes/internal/docs"
	"git.home.luguber.info/inful/pmeyes/internal/emitter"
	"git.home.luguber.info/inful/pmeyes/internal/events"
	ferrors "git.home.luguber.info/inful/pmeyes/internal/foundation/errors"
	"git.home.luguber.info/inful/pmeyes/internal/hashcache"
	"git.home.luguber.info/inful/pmeyes/internal/history"
)

type fixture struct {
	dir string
	cfg *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Content.Root = filepath.Join(dir, "articles")
	cfg.Output.ArticlesDir = filepath.Join(dir, "data", "articles-json")
	cfg.Output.IndexFile = filepath.Join(dir, "data", "articles.json")
	cfg.Output.CacheFile = filepath.Join(dir, "data", ".articles-cache.json")
	cfg.Assets.Dir = filepath.Join(dir, "data", "assets")
	return &fixture{dir: dir, cfg: cfg}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(f.cfg.Content.Root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (f *fixture) read(t *testing.T, slug string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.cfg.Output.ArticlesDir, slug+".json"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func clock() time.Time { return time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC) }

type capturePublisher struct {
	mu     sync.Mutex
	events []string
}

func (c *capturePublisher) Publish(_ context.Context, eventType string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, eventType)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t)
	f.write(t, "pm/intro.md", "---\ntitle: \"Intro\"\n---\nWelcome to project management.\n")

	res, err := New(f.cfg, WithClock(clock)).Run(t.Context())
	require.NoError(t, err)
	assert.True(t, res.Regenerated)
	assert.Equal(t, hashcache.ReasonCacheMissing, res.Reason)
	assert.Equal(t, 1, res.Articles)

	doc := f.read(t, "intro")
	assert.Equal(t, "intro", doc["id"])
	assert.Equal(t, "pm", doc["folder"])
	assert.Equal(t, "Intro", doc["title"])
	assert.Equal(t, "2025-06-01", doc["publishedAt"])
	assert.FileExists(t, f.cfg.Output.IndexFile)
	assert.FileExists(t, f.cfg.Output.CacheFile)
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "---\ntags: [x]\n---\nbody")
	f.write(t, "topic/sub/b.md", "words here")

	p := New(f.cfg, WithClock(clock))
	_, err := p.Run(t.Context())
	require.NoError(t, err)

	snapshot := func() map[string][]byte {
		out := map[string][]byte{}
		for _, name := range []string{"a.json", "b.json"} {
			data, err := os.ReadFile(filepath.Join(f.cfg.Output.ArticlesDir, name))
			require.NoError(t, err)
			out[name] = data
		}
		idx, err := os.ReadFile(f.cfg.Output.IndexFile)
		require.NoError(t, err)
		out["index"] = idx
		return out
	}
	first := snapshot()
	cacheBefore, err := hashcache.New(f.cfg.Output.CacheFile).Load()
	require.NoError(t, err)

	res, err := p.Run(t.Context())
	require.NoError(t, err)
	assert.False(t, res.Regenerated)
	assert.Equal(t, hashcache.ReasonUpToDate, res.Reason)
	assert.Equal(t, first, snapshot())

	cacheAfter, err := hashcache.New(f.cfg.Output.CacheFile).Load()
	require.NoError(t, err)
	assert.Equal(t, cacheBefore.Files, cacheAfter.Files)

	// Forced regeneration still yields identical bytes.
	_, err = New(f.cfg, WithClock(clock), WithForce(true)).Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, first, snapshot())
}

func TestRun_ChangesTriggerRegeneration(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "one")
	p := New(f.cfg, WithClock(clock))
	_, err := p.Run(t.Context())
	require.NoError(t, err)

	f.write(t, "a.md", "two")
	res, err := p.Run(t.Context())
	require.NoError(t, err)
	assert.True(t, res.Regenerated)
	assert.Equal(t, hashcache.ReasonFileModified, res.Reason)
	assert.Equal(t, "two", f.read(t, "a")["content"])

	require.NoError(t, os.Remove(filepath.Join(f.cfg.Output.ArticlesDir, "a.json")))
	res, err = p.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, hashcache.ReasonJSONMissing, res.Reason)

	f.write(t, "new.md", "new")
	res, err = p.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, hashcache.ReasonFileAdded, res.Reason)

	require.NoError(t, os.Remove(filepath.Join(f.cfg.Content.Root, "new.md")))
	res, err = p.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, hashcache.ReasonFileDeleted, res.Reason)
	assert.NoFileExists(t, filepath.Join(f.cfg.Output.ArticlesDir, "new.json"))
}

func TestRun_MissingIndexTriggersRegeneration(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "body")
	p := New(f.cfg, WithClock(clock))
	_, err := p.Run(t.Context())
	require.NoError(t, err)

	require.NoError(t, os.Remove(f.cfg.Output.IndexFile))
	res, err := p.Run(t.Context())
	require.NoError(t, err)
	assert.True(t, res.Regenerated)
	assert.Equal(t, hashcache.ReasonIndexMissing, res.Reason)
	assert.FileExists(t, f.cfg.Output.IndexFile)
}

func TestRun_RewritesAssets(t *testing.T) {
	f := newFixture(t)
	f.write(t, "foo/bar.md", "![pic](./pic.png)\n![gone](./missing.png)\n")
	f.write(t, "foo/pic.png", "png-bytes")

	res, err := New(f.cfg, WithClock(clock)).Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, res.AssetsCopied)
	assert.Equal(t, 1, res.AssetsSkipped)

	doc := f.read(t, "bar")
	assert.Contains(t, doc["content"], "![pic](/data/assets/foo/pic.png)")
	assert.Contains(t, doc["content"], "![gone](./missing.png)")
	assert.Contains(t, doc["rawContent"], "![pic](./pic.png)")
	assert.FileExists(t, filepath.Join(f.cfg.Assets.Dir, "foo", "pic.png"))
}

func TestRun_MissingRootIsFatal(t *testing.T) {
	f := newFixture(t)

	_, err := New(f.cfg).Run(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, docs.ErrSourceRootUnreadable)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryFileSystem))
}

func TestRun_DuplicateSlugIsFatal(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a/same.md", "one")
	f.write(t, "b/same.md", "two")

	_, err := New(f.cfg).Run(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, emitter.ErrDuplicateSlug)
}

func TestRun_RecordsHistoryAndPublishes(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "body")

	store, err := history.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	pub := &capturePublisher{}

	p := New(f.cfg, WithClock(clock), WithHistory(store), WithPublisher(pub))
	first, err := p.Run(t.Context())
	require.NoError(t, err)
	_, err = p.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []string{events.TypeContentRegenerated}, pub.events)

	runs, err := store.Recent(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	ids := []string{runs[0].ID, runs[1].ID}
	assert.Contains(t, ids, first.RunID)
	outcomes := []string{runs[0].Outcome, runs[1].Outcome}
	assert.ElementsMatch(t, []string{history.OutcomeRegenerated, history.OutcomeUpToDate}, outcomes)
}
