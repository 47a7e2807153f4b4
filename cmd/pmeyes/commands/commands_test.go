package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/pmeyes/internal/foundation/errors"
)

type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T, withHistory bool) *workspace {
	t.Helper()
	dir := t.TempDir()
	historyPath := ""
	if withHistory {
		historyPath = filepath.Join(dir, "data", "history.db")
	}
	cfg := fmt.Sprintf(`
content:
  root: %[1]s/articles
output:
  articles_dir: %[1]s/data/articles-json
  index_file: %[1]s/data/articles.json
  cache_file: %[1]s/data/.articles-cache.json
assets:
  dir: %[1]s/data/assets
locales:
  source_dir: %[1]s/src/locales
  output_dir: %[1]s/data/locales
  cache_file: %[1]s/data/.locales-cache.json
metrics:
  textfile: %[1]s/metrics.prom
history:
  path: "%[2]s"
`, dir, historyPath)
	path := filepath.Join(dir, "pmeyes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return &workspace{dir: dir, config: path}
}

func (w *workspace) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(w.dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// execute parses and runs args the way main does, returning stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	var cli CLI
	g := &Global{Out: &out}
	defer g.Close()

	parser, err := kong.New(&cli,
		kong.Name("pmeyes"),
		kong.Vars{"version": "test"},
		kong.Bind(g),
		kong.BindTo(context.Background(), (*context.Context)(nil)),
		kong.Exit(func(int) { t.Fatalf("unexpected exit for %v", args) }),
	)
	require.NoError(t, err)

	kctx, err := parser.Parse(args)
	if err != nil {
		return out.String(), err
	}
	err = kctx.Run()
	return out.String(), err
}

func TestConvert(t *testing.T) {
	w := newWorkspace(t, false)
	w.write(t, "articles/pm/intro.md", "---\ntitle: Intro\n---\nHello.\n")

	out, err := execute(t, "-c", w.config, "convert")
	require.NoError(t, err)
	assert.Contains(t, out, "Converted 1 articles")
	assert.FileExists(t, filepath.Join(w.dir, "data", "articles-json", "intro.json"))

	metricsText, err := os.ReadFile(filepath.Join(w.dir, "metrics.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), "pmeyes_")

	out, err = execute(t, "-c", w.config, "convert")
	require.NoError(t, err)
	assert.Equal(t, "No changes, skipped\n", out)

	out, err = execute(t, "-c", w.config, "convert", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Converted 1 articles")
}

func TestConvert_MissingRootFails(t *testing.T) {
	w := newWorkspace(t, false)

	_, err := execute(t, "-c", w.config, "convert")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryFileSystem))
	assert.Equal(t, 1, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestMissingExplicitConfigFails(t *testing.T) {
	_, err := execute(t, "-c", filepath.Join(t.TempDir(), "nope.yaml"), "convert")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestHistory(t *testing.T) {
	w := newWorkspace(t, true)
	w.write(t, "articles/a.md", "body")

	_, err := execute(t, "-c", w.config, "convert")
	require.NoError(t, err)
	_, err = execute(t, "-c", w.config, "convert")
	require.NoError(t, err)

	out, err := execute(t, "-c", w.config, "history", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "OUTCOME")
	assert.Contains(t, out, "regenerated")
	assert.Contains(t, out, "up_to_date")

	out, err = execute(t, "-c", w.config, "history", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "up_to_date")
	assert.NotContains(t, out, "regenerated")
}

func TestHistory_Disabled(t *testing.T) {
	w := newWorkspace(t, false)
	_, err := execute(t, "-c", w.config, "history")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestLocales(t *testing.T) {
	w := newWorkspace(t, false)
	w.write(t, "src/locales/zh-CN.json", `{"hello":"你好","bye":"再见"}`)
	w.write(t, "src/locales/en-US.json", `{"hello":"Hello"}`)

	out, err := execute(t, "-c", w.config, "locales")
	require.NoError(t, err)
	assert.Contains(t, out, "zh-CN: 2 keys\n")
	assert.Contains(t, out, "en-US: 2 keys, 1 filled from zh-CN\n")

	out, err = execute(t, "-c", w.config, "locales")
	require.NoError(t, err)
	assert.Equal(t, "Locale files up to date\n", out)
}

func TestCompressImages_EmptyAssetRoot(t *testing.T) {
	w := newWorkspace(t, false)
	out, err := execute(t, "-c", w.config, "compress-images")
	require.NoError(t, err)
	assert.Equal(t, "0 images checked, 0 renamed, 0 failed, 0.00KB saved\n", out)
}
