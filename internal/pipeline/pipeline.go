// Package pipeline runs the markdown to JSON conversion:
// scan, change check, extract, rewrite assets, emit.
//
// Regeneration is all-or-nothing. When the hash cache reports no change the
// run ends after the check stage and nothing is written.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/pmeyes/internal/article"
	"git.home.luguber.info/inful/pmeyes/internal/assets"
	"git.home.luguber.info/inful/pmeyes/internal/config"
	"git.home.luguber.info/inful/pmeyes/internal/docs"
	"git.home.luguber.info/inful/pmeyes/internal/emitter"
	"git.home.luguber.info/inful/pmeyes/internal/events"
	ferrors "git.home.luguber.info/inful/pmeyes/internal/foundation/errors"
	"git.home.luguber.info/inful/pmeyes/internal/git"
	"git.home.luguber.info/inful/pmeyes/internal/hashcache"
	"git.home.luguber.info/inful/pmeyes/internal/history"
	"git.home.luguber.info/inful/pmeyes/internal/logfields"
	"git.home.luguber.info/inful/pmeyes/internal/metrics"
)

// Stage names used for logging and metrics.
const (
	StageScan    = "scan"
	StageCheck   = "check"
	StageExtract = "extract"
	StageAssets  = "assets"
	StageEmit    = "emit"
)

// Result summarizes one run.
type Result struct {
	RunID       string
	Regenerated bool
	Reason      hashcache.Reason
	Trigger     string // file or document behind Reason
	Articles    int
	Slugs       []string

	AssetsCopied  int
	AssetsWritten int
	AssetsSkipped int

	Emit     emitter.Stats
	Duration time.Duration
}

// Pipeline converts the content root into article JSON documents.
type Pipeline struct {
	cfg       *config.Config
	extractor *article.Extractor
	recorder  metrics.Recorder
	publisher events.Publisher
	history   history.Store
	logger    *slog.Logger
	now       func() time.Time
	force     bool

	// serve may trigger overlapping runs; they share output directories.
	mu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithPublisher sets the event publisher.
func WithPublisher(pub events.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithHistory sets the run history store.
func WithHistory(s history.Store) Option {
	return func(p *Pipeline) { p.history = s }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock overrides the clock used for defaults and timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithForce makes every run regenerate regardless of the cache.
func WithForce(force bool) Option {
	return func(p *Pipeline) { p.force = force }
}

// New creates a pipeline for cfg.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		recorder:  metrics.NoopRecorder{},
		publisher: events.NoopPublisher{},
		history:   history.NoopStore{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.extractor = article.NewExtractor(cfg.Content.Uncategorized).WithClock(p.now)
	return p
}

// Run executes one pipeline pass. A nil error with Regenerated false means
// the output was already up to date.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.now()
	res := Result{RunID: uuid.NewString()}
	log := p.logger.With(logfields.RunID(res.RunID))

	err := p.run(ctx, log, &res)
	res.Duration = p.now().Sub(start)

	outcome := metrics.OutcomeUpToDate
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailed
	case res.Regenerated:
		outcome = metrics.OutcomeRegenerated
	}
	p.recorder.ObserveRunDuration(history.KindConvert, res.Duration)
	p.recorder.IncRunOutcome(history.KindConvert, outcome)
	p.recordHistory(ctx, log, start, res, string(outcome), err)

	if err != nil {
		return res, err
	}
	log.Info("Conversion finished",
		"regenerated", res.Regenerated,
		"reason", string(res.Reason),
		logfields.Count(res.Articles),
		logfields.DurationMS(ms(res.Duration)))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, res *Result) error {
	root := p.cfg.Content.Root

	var files []docs.SourceFile
	err := p.stage(log, StageScan, func() error {
		var err error
		files, err = docs.NewScanner(root, p.cfg.Content.ReservedFiles).Scan()
		if err != nil {
			return ferrors.FileSystemError("cannot read content root").WithCause(err).
				Fatal().WithContext("path", root).Build()
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info("Scanned content", logfields.Path(root), logfields.Count(len(files)))

	cache := hashcache.New(p.cfg.Output.CacheFile)
	if p.cfg.Output.IndexEnabled() {
		cache.WithIndexFile(p.cfg.Output.IndexFile)
	}
	var decision hashcache.Decision
	_ = p.stage(log, StageCheck, func() error {
		decision = cache.Check(files, p.cfg.Output.ArticlesDir, p.slugOf)
		return nil
	})
	res.Reason, res.Trigger = decision.Reason, decision.Path
	if !decision.Regenerate && !p.force {
		p.recorder.IncStageResult(StageCheck, metrics.ResultSkipped)
		log.Info("No changes detected, skipping generation")
		return nil
	}
	log.Info("Regenerating all articles", "reason", string(decision.Reason), logfields.Path(decision.Path))
	res.Regenerated = true

	if err := ctx.Err(); err != nil {
		return err
	}

	articles, records, err := p.extract(log, files)
	if err != nil {
		return err
	}

	if err := p.stage(log, StageAssets, func() error { return p.rewriteAssets(log, articles, files, res) }); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	em := emitter.New(p.cfg.Output.ArticlesDir, p.cfg.Output.IndexFile, p.cfg.Output.IndexEnabled()).
		WithClock(p.now).
		WithLogger(log)
	err = p.stage(log, StageEmit, func() error {
		stats, err := em.Emit(articles)
		res.Emit = stats
		if err != nil && !isClassified(err) {
			return ferrors.FileSystemError("cannot write output").WithCause(err).
				Fatal().WithContext("path", p.cfg.Output.ArticlesDir).Build()
		}
		return err
	})
	if err != nil {
		return err
	}

	res.Articles = len(articles)
	for _, a := range articles {
		res.Slugs = append(res.Slugs, a.Slug)
	}
	p.recorder.SetArticlesEmitted(res.Articles)
	p.recorder.AddAssetsCopied(res.AssetsCopied)

	if err := cache.Save(records, len(articles)); err != nil {
		log.Warn("Failed to save hash cache", logfields.Path(cache.Path()), logfields.Error(err))
	}

	if err := p.publisher.Publish(ctx, events.TypeContentRegenerated, events.ContentRegenerated{
		RunID:        res.RunID,
		ArticleCount: res.Articles,
		Slugs:        res.Slugs,
	}); err != nil {
		log.Warn("Failed to publish event", "event", events.TypeContentRegenerated, logfields.Error(err))
	}
	return nil
}

// extract reads and parses every file, optionally adding git metadata.
func (p *Pipeline) extract(log *slog.Logger, files []docs.SourceFile) ([]*article.Article, map[string]hashcache.FileRecord, error) {
	articles := make([]*article.Article, 0, len(files))
	records := make(map[string]hashcache.FileRecord, len(files))

	err := p.stage(log, StageExtract, func() error {
		gitInfo := p.openGit(log)
		for _, f := range files {
			raw, err := os.ReadFile(f.Path)
			if err != nil {
				return ferrors.FileSystemError("cannot read article").WithCause(err).
					Fatal().WithContext("path", f.RelativePath).Build()
			}
			a, err := p.extractor.Extract(f, raw)
			if err != nil {
				return ferrors.ContentError("cannot parse article").WithCause(err).
					WithContext("path", f.RelativePath).Build()
			}
			if gitInfo != nil {
				applyGit(log, gitInfo, f, a)
			}
			rec, err := hashcache.Record(f.Path, raw)
			if err != nil {
				return ferrors.FileSystemError("cannot stat article").WithCause(err).
					Fatal().WithContext("path", f.RelativePath).Build()
			}
			records[f.RelativePath] = rec
			articles = append(articles, a)
			log.Debug("Extracted article", logfields.Slug(a.Slug), logfields.Folder(a.Folder))
		}
		return nil
	})
	return articles, records, err
}

func (p *Pipeline) openGit(log *slog.Logger) *git.Reader {
	if !p.cfg.Content.GitMetadata {
		return nil
	}
	r, err := git.Open(p.cfg.Content.Root)
	if err != nil {
		err = ferrors.GitError("git metadata unavailable").WithCause(err).
			Warning().WithContext("path", p.cfg.Content.Root).Build()
		log.Warn("Git metadata unavailable", logfields.Error(err))
		return nil
	}
	if !r.Enabled() {
		return nil
	}
	return r
}

func applyGit(log *slog.Logger, r *git.Reader, f docs.SourceFile, a *article.Article) {
	info, err := r.Lookup(f.Path)
	if err != nil {
		err = ferrors.GitError("git lookup failed").WithCause(err).
			Warning().WithContext("path", f.RelativePath).Build()
		log.Warn("Git lookup failed", logfields.Path(f.RelativePath), logfields.Error(err))
		return
	}
	if info.UpdatedAt.IsZero() {
		return
	}
	a.UpdatedAt = info.UpdatedAt.UTC().Format(time.RFC3339)
	a.Author = info.Author
}

func (p *Pipeline) rewriteAssets(log *slog.Logger, articles []*article.Article, files []docs.SourceFile, res *Result) error {
	rw := assets.NewRewriter(p.cfg.Content.Root, p.cfg.Assets.Dir, p.cfg.Assets.URLPrefix).WithLogger(log)
	for i, a := range articles {
		out, err := rw.Rewrite(a.Content, files[i].Dir())
		if err != nil {
			return ferrors.AssetError("asset rewrite failed").WithCause(err).
				Fatal().WithContext("path", a.FilePath).Build()
		}
		a.Content = out.Body
		res.AssetsCopied += out.Copied
		res.AssetsWritten += out.Written
		res.AssetsSkipped += out.Skipped
	}
	log.Info("Processed image references",
		"copied", res.AssetsCopied, "written", res.AssetsWritten, "skipped", res.AssetsSkipped)
	return nil
}

// slugOf is the hash cache's view of an article's output name.
func (p *Pipeline) slugOf(f docs.SourceFile) (string, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return "", err
	}
	return p.extractor.Slug(f, raw)
}

// stage times fn and records its result.
func (p *Pipeline) stage(log *slog.Logger, name string, fn func() error) error {
	start := p.now()
	err := fn()
	d := p.now().Sub(start)
	p.recorder.ObserveStageDuration(name, d)
	if err != nil {
		p.recorder.IncStageResult(name, metrics.ResultFatal)
		log.Error("Stage failed", logfields.Stage(name), logfields.DurationMS(ms(d)), logfields.Error(err))
		return err
	}
	p.recorder.IncStageResult(name, metrics.ResultSuccess)
	log.Debug("Stage complete", logfields.Stage(name), logfields.DurationMS(ms(d)))
	return nil
}

func (p *Pipeline) recordHistory(ctx context.Context, log *slog.Logger, start time.Time, res Result, outcome string, runErr error) {
	run := history.Run{
		ID:        res.RunID,
		Kind:      history.KindConvert,
		StartedAt: start,
		Duration:  res.Duration,
		Outcome:   outcome,
		Articles:  res.Articles,
		Assets:    res.AssetsCopied,
		Skipped:   runErr == nil && !res.Regenerated,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	// Recorded even when ctx was canceled mid-run.
	if err := p.history.Record(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("Failed to record run history", logfields.Error(err))
	}
}

func isClassified(err error) bool {
	_, ok := ferrors.AsClassified(err)
	return ok
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
