package config

import "time"

// Uncategorized is the folder assigned to articles at the content root.
const Uncategorized = "未分类"

func applyDefaults(cfg *Config) {
	c := &cfg.Content
	if c.Root == "" {
		c.Root = "articles"
	}
	if c.ReservedFiles == nil {
		c.ReservedFiles = []string{"README.md"}
	}
	if c.Uncategorized == "" {
		c.Uncategorized = Uncategorized
	}

	o := &cfg.Output
	if o.ArticlesDir == "" {
		o.ArticlesDir = "data/articles-json"
	}
	if o.IndexFile == "" {
		o.IndexFile = "data/articles.json"
	}
	if o.CacheFile == "" {
		o.CacheFile = "data/.articles-cache.json"
	}

	if cfg.Assets.Dir == "" {
		cfg.Assets.Dir = "data/assets"
	}
	if cfg.Assets.URLPrefix == "" {
		cfg.Assets.URLPrefix = "/data/assets"
	}

	if cfg.Images.MaxBytes == 0 {
		cfg.Images.MaxBytes = 10 * 1024
	}

	l := &cfg.Locales
	if l.SourceDir == "" {
		l.SourceDir = "src/locales"
	}
	if l.OutputDir == "" {
		l.OutputDir = "data/locales"
	}
	if l.CacheFile == "" {
		l.CacheFile = "data/.locales-cache.json"
	}
	if l.Base == "" {
		l.Base = "zh-CN"
	}
	if len(l.Languages) == 0 {
		l.Languages = []string{"zh-CN", "en-US"}
	}

	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = ":8080"
	}
	if cfg.Serve.StaticDir == "" {
		cfg.Serve.StaticDir = "dist"
	}

	cfg.Logging.Level = string(NormalizeLogLevel(cfg.Logging.Level))
	cfg.Logging.Format = string(NormalizeLogFormat(cfg.Logging.Format))

	if cfg.Events.Subject == "" {
		cfg.Events.Subject = "pmeyes.content"
	}
	// An absent retry block means the default policy; an explicit one is
	// taken as written, so max_retries: 0 disables retries.
	if cfg.Events.Retry == (RetryConfig{}) {
		cfg.Events.Retry = RetryConfig{Backoff: BackoffLinear, Initial: time.Second, Max: 30 * time.Second, MaxRetries: 2}
	}
}
