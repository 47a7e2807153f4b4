// Package locales generates the client locale files and provides key lookup
// over them.
//
// Each source file is a flat JSON object of string values. The generated file
// for every non-base language contains all keys of the base language; keys it
// does not translate are filled with the base value behind a "[EN] " style
// marker naming the target language.
package locales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/pmeyes/internal/config"
	"git.home.luguber.info/inful/pmeyes/internal/docs"
	"git.home.luguber.info/inful/pmeyes/internal/emitter"
	ferrors "git.home.luguber.info/inful/pmeyes/internal/foundation/errors"
	"git.home.luguber.info/inful/pmeyes/internal/history"
	"git.home.luguber.info/inful/pmeyes/internal/logfields"
	"git.home.luguber.info/inful/pmeyes/internal/storage"
	"git.home.luguber.info/inful/pmeyes/internal/watch"
)

// ErrInvalidLocale indicates a source file that is not a flat string map.
var ErrInvalidLocale = errors.New("invalid locale file")

// Stats reports one Generate call.
type Stats struct {
	Regenerated bool
	Keys        map[string]int      // language → key count written
	Missing     map[string][]string // language → base keys it lacked
}

// Generator writes <output_dir>/<lang>.json for every configured language.
type Generator struct {
	cfg     config.LocalesConfig
	history history.Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewGenerator creates a generator.
func NewGenerator(cfg config.LocalesConfig) *Generator {
	return &Generator{cfg: cfg, history: history.NoopStore{}, logger: slog.Default(), now: time.Now}
}

// WithHistory sets the run history store.
func (g *Generator) WithHistory(s history.Store) *Generator {
	g.history = s
	return g
}

// WithLogger sets a custom logger.
func (g *Generator) WithLogger(l *slog.Logger) *Generator {
	g.logger = l
	return g
}

// Generate regenerates the output files unless the sources are unchanged
// since the last run and the output directory exists.
func (g *Generator) Generate(ctx context.Context) (Stats, error) {
	start := g.now()
	runID := uuid.NewString()
	log := g.logger.With(logfields.RunID(runID))

	stats, err := g.generate(log)

	run := history.Run{ID: runID, Kind: history.KindLocales, StartedAt: start, Duration: g.now().Sub(start)}
	switch {
	case err != nil:
		run.Outcome, run.Error = history.OutcomeFailed, err.Error()
	case stats.Regenerated:
		run.Outcome = history.OutcomeRegenerated
	default:
		run.Outcome, run.Skipped = history.OutcomeUpToDate, true
	}
	if herr := g.history.Record(context.WithoutCancel(ctx), run); herr != nil {
		log.Warn("Failed to record run history", logfields.Error(herr))
	}
	return stats, err
}

func (g *Generator) generate(log *slog.Logger) (Stats, error) {
	stats := Stats{Keys: map[string]int{}, Missing: map[string][]string{}}

	hashes, changed := g.check(log)
	if !changed {
		log.Info("Locale files unchanged, skipping generation")
		return stats, nil
	}

	base, err := g.read(g.cfg.Base, true)
	if err != nil {
		return stats, err
	}

	outputs := map[string]map[string]string{g.cfg.Base: base}
	for _, lang := range g.cfg.Languages {
		if lang == g.cfg.Base {
			continue
		}
		data, err := g.read(lang, false)
		if err != nil {
			return stats, err
		}
		complete, missing := Complete(base, data, lang)
		outputs[lang] = complete
		stats.Missing[lang] = missing
	}

	for _, lang := range g.cfg.Languages {
		out, err := emitter.Marshal(outputs[lang])
		if err != nil {
			return stats, fmt.Errorf("encode %s: %w", lang, err)
		}
		path := filepath.Join(g.cfg.OutputDir, lang+".json")
		if err := storage.WriteFileAtomic(path, out, 0o644); err != nil {
			return stats, ferrors.FileSystemError("cannot write locale file").WithCause(err).
				Fatal().WithContext("path", path).Build()
		}
		stats.Keys[lang] = len(outputs[lang])
		log.Info("Generated locale", logfields.Language(lang), logfields.Path(path), logfields.Count(len(outputs[lang])))
	}

	if err := g.saveCache(hashes); err != nil {
		log.Warn("Failed to write locale cache", logfields.Path(g.cfg.CacheFile), logfields.Error(err))
	}

	stats.Regenerated = true
	for lang, missing := range stats.Missing {
		if len(missing) > 0 {
			log.Info("Missing translations", logfields.Language(lang), logfields.Count(len(missing)),
				"keys", strings.Join(missing, ", "))
		}
	}
	return stats, nil
}

// Complete fills keys of base that are absent or empty in data with a marked
// copy of the base value. It returns the completed map and the sorted list of
// filled keys.
func Complete(base, data map[string]string, lang string) (map[string]string, []string) {
	out := maps.Clone(data)
	if out == nil {
		out = map[string]string{}
	}
	var missing []string
	marker := Marker(lang)
	for key, value := range base {
		if out[key] == "" {
			out[key] = marker + value
			missing = append(missing, key)
		}
	}
	slices.Sort(missing)
	return out, missing
}

// Marker is the placeholder prefix for untranslated values, e.g. "[EN] ".
func Marker(lang string) string {
	short := lang
	if tag, err := language.Parse(lang); err == nil {
		b, _ := tag.Base()
		short = b.String()
	}
	return "[" + strings.ToUpper(short) + "] "
}

func (g *Generator) sourcePath(lang string) string {
	return filepath.Join(g.cfg.SourceDir, lang+".json")
}

// read loads one source file. A missing non-base file is treated as empty.
func (g *Generator) read(lang string, required bool) (map[string]string, error) {
	path := g.sourcePath(lang)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		g.logger.Warn("Locale source missing, treating as empty", logfields.Language(lang), logfields.Path(path))
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, ferrors.LocaleError("cannot read locale source").WithCause(err).
			WithContext("path", path).Build()
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, ferrors.LocaleError("cannot parse locale source").
			WithCause(fmt.Errorf("%w: %w", ErrInvalidLocale, err)).
			WithContext("path", path).Build()
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}

// check hashes the sources and compares them with the cache. Any cache
// problem counts as a change.
func (g *Generator) check(log *slog.Logger) (map[string]string, bool) {
	hashes := make(map[string]string, len(g.cfg.Languages))
	for _, lang := range g.cfg.Languages {
		if h, err := docs.FileHash(g.sourcePath(lang)); err == nil {
			hashes[lang] = h
		}
	}

	if info, err := os.Stat(g.cfg.OutputDir); err != nil || !info.IsDir() {
		log.Info("Locale output directory missing", logfields.Path(g.cfg.OutputDir))
		return hashes, true
	}
	cached, err := g.loadCache()
	if err != nil {
		return hashes, true
	}
	if !maps.Equal(hashes, cached) {
		for _, lang := range g.cfg.Languages {
			if hashes[lang] != cached[lang] {
				log.Info("Locale source changed", logfields.Language(lang))
			}
		}
		return hashes, true
	}
	for _, lang := range g.cfg.Languages {
		if !storage.Exists(filepath.Join(g.cfg.OutputDir, lang+".json")) {
			return hashes, true
		}
	}
	return hashes, false
}

func (g *Generator) loadCache() (map[string]string, error) {
	data, err := os.ReadFile(g.cfg.CacheFile)
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (g *Generator) saveCache(hashes map[string]string) error {
	data, err := json.MarshalIndent(hashes, "", "  ")
	if err != nil {
		return err
	}
	return storage.WriteFileAtomic(g.cfg.CacheFile, data, 0o644)
}

// Watch generates once, then regenerates whenever a configured source file
// changes, until ctx is done. Generation errors during watching are logged.
func (g *Generator) Watch(ctx context.Context) error {
	if _, err := g.Generate(ctx); err != nil {
		return err
	}
	names := make(map[string]struct{}, len(g.cfg.Languages))
	for _, lang := range g.cfg.Languages {
		names[lang+".json"] = struct{}{}
	}
	g.logger.Info("Watching locale sources", logfields.Path(g.cfg.SourceDir))
	return watch.Run(ctx, []string{g.cfg.SourceDir}, watch.Options{
		Logger: g.logger,
		Filter: func(p string) bool {
			_, ok := names[filepath.Base(p)]
			return ok
		},
	}, func(ctx context.Context) {
		if _, err := g.Generate(ctx); err != nil {
			g.logger.Error("Locale generation failed", logfields.Error(err))
		}
	})
}
