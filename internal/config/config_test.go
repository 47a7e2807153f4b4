package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "articles", cfg.Content.Root)
	assert.Equal(t, []string{"README.md"}, cfg.Content.ReservedFiles)
	assert.Equal(t, "未分类", cfg.Content.Uncategorized)
	assert.Equal(t, "data/articles-json", cfg.Output.ArticlesDir)
	assert.Equal(t, "data/articles.json", cfg.Output.IndexFile)
	assert.Equal(t, "data/.articles-cache.json", cfg.Output.CacheFile)
	assert.True(t, cfg.Output.IndexEnabled())
	assert.Equal(t, "data", cfg.Output.Root())
	assert.Equal(t, "data/assets", cfg.Assets.Dir)
	assert.Equal(t, "/data/assets", cfg.Assets.URLPrefix)
	assert.Equal(t, int64(10240), cfg.Images.MaxBytes)
	assert.Equal(t, "zh-CN", cfg.Locales.Base)
	assert.Equal(t, []string{"zh-CN", "en-US"}, cfg.Locales.Languages)
	assert.Equal(t, ":8080", cfg.Serve.Addr)
	assert.Equal(t, "pmeyes.content", cfg.Events.Subject)
	assert.Equal(t, BackoffLinear, cfg.Events.Retry.Backoff)
	assert.Equal(t, 2, cfg.Events.Retry.MaxRetries)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	require.NoError(t, cfg.Validate())
}

func TestParseOverridesAndExpandsEnv(t *testing.T) {
	t.Setenv("PMEYES_TEST_NATS", "nats://localhost:4222")

	cfg, err := Parse([]byte(`
content:
  root: posts
  git_metadata: true
output:
  write_index: false
images:
  max_bytes: 2048
serve:
  rebuild_interval: 5m
logging:
  level: DEBUG
  format: json
events:
  nats_url: ${PMEYES_TEST_NATS}
`))
	require.NoError(t, err)

	assert.Equal(t, "posts", cfg.Content.Root)
	assert.True(t, cfg.Content.GitMetadata)
	assert.False(t, cfg.Output.IndexEnabled())
	assert.Equal(t, int64(2048), cfg.Images.MaxBytes)
	assert.Equal(t, 5*time.Minute, cfg.Serve.RebuildInterval)
	assert.Equal(t, string(LogLevelDebug), cfg.Logging.Level)
	assert.Equal(t, string(LogFormatJSON), cfg.Logging.Format)
	assert.Equal(t, "nats://localhost:4222", cfg.Events.NATSURL)
	// Untouched sections keep their defaults.
	assert.Equal(t, "data/articles-json", cfg.Output.ArticlesDir)
}

func TestParseValidation(t *testing.T) {
	cases := map[string]string{
		"relative url prefix": "assets:\n  url_prefix: data/assets\n",
		"base not in list":    "locales:\n  base: fr-FR\n",
		"negative budget":     "images:\n  max_bytes: -1\n",
		"bad yaml":            "content: [",
		"unknown backoff":     "events:\n  retry:\n    backoff: random\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseExplicitRetryIsKept(t *testing.T) {
	cfg, err := Parse([]byte("events:\n  retry:\n    backoff: fixed\n    initial: 200ms\n"))
	require.NoError(t, err)
	assert.Equal(t, RetryConfig{Backoff: BackoffFixed, Initial: 200 * time.Millisecond}, cfg.Events.Retry)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pmeyes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("assets:\n  dir: public/assets\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "public/assets", cfg.Assets.Dir)
}

func TestNormalizeLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelWarn, NormalizeLogLevel(" Warning "))
	assert.Equal(t, LogLevelInfo, NormalizeLogLevel("verbose"))
	assert.Equal(t, LogFormatText, NormalizeLogFormat(""))
}
