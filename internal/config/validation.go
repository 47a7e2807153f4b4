package config

import (
	"fmt"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Content.Validate(); err != nil {
		return fmt.Errorf("content: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := c.Assets.Validate(); err != nil {
		return fmt.Errorf("assets: %w", err)
	}
	if err := validation.ValidateStruct(&c.Images,
		validation.Field(&c.Images.MaxBytes, validation.Min(int64(1))),
	); err != nil {
		return fmt.Errorf("images: %w", err)
	}
	if err := c.Locales.Validate(); err != nil {
		return fmt.Errorf("locales: %w", err)
	}
	if err := validation.ValidateStruct(&c.Events.Retry,
		validation.Field(&c.Events.Retry.Backoff, validation.In(BackoffFixed, BackoffLinear, BackoffExponential)),
		validation.Field(&c.Events.Retry.MaxRetries, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("events.retry: %w", err)
	}
	if err := validation.ValidateStruct(&c.Serve,
		validation.Field(&c.Serve.Addr, validation.Required),
		validation.Field(&c.Serve.RebuildInterval, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Validate validates the content configuration.
func (c *ContentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Uncategorized, validation.Required),
	)
}

// Validate validates the output configuration.
func (o *OutputConfig) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.ArticlesDir, validation.Required),
		validation.Field(&o.IndexFile, validation.Required),
		validation.Field(&o.CacheFile, validation.Required),
	)
}

// Validate validates the asset configuration.
func (a *AssetsConfig) Validate() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Dir, validation.Required),
		validation.Field(&a.URLPrefix, validation.Required, validation.By(func(v any) error {
			if s, _ := v.(string); !strings.HasPrefix(s, "/") {
				return fmt.Errorf("must start with /")
			}
			return nil
		})),
	)
}

// Validate validates the locale configuration.
func (l *LocalesConfig) Validate() error {
	if err := validation.ValidateStruct(l,
		validation.Field(&l.SourceDir, validation.Required),
		validation.Field(&l.OutputDir, validation.Required),
		validation.Field(&l.Base, validation.Required),
		validation.Field(&l.Languages, validation.Required),
	); err != nil {
		return err
	}
	if !slices.Contains(l.Languages, l.Base) {
		return fmt.Errorf("base language %q missing from languages", l.Base)
	}
	return nil
}
