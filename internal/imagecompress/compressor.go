// Package imagecompress recompresses oversized images under the public asset
// root to a byte budget without resizing them. When a different format wins,
// the asset is renamed and every emitted JSON document referencing the old
// public URL is rewritten.
package imagecompress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/pmeyes/internal/config"
	"git.home.luguber.info/inful/pmeyes/internal/events"
	ferrors "git.home.luguber.info/inful/pmeyes/internal/foundation/errors"
	"git.home.luguber.info/inful/pmeyes/internal/history"
	"git.home.luguber.info/inful/pmeyes/internal/logfields"
	"git.home.luguber.info/inful/pmeyes/internal/metrics"
	"git.home.luguber.info/inful/pmeyes/internal/storage"
)

// ErrNoEncoding indicates no strategy produced a usable buffer.
var ErrNoEncoding = errors.New("no encoding produced")

// Attempt is the size produced by one strategy.
type Attempt struct {
	Strategy string
	Format   Format
	Size     int
}

// Outcome describes the handling of one image.
type Outcome struct {
	Path     string // relative to the asset root, slash-separated
	NewPath  string // differs from Path when the extension changed
	Result   metrics.ImageResult
	Before   int64
	After    int64
	Attempts []Attempt
	Err      error
}

// Report summarizes a run.
type Report struct {
	RunID    string
	Images   []Outcome
	Renamed  int
	Failed   int
	Saved    int64
	Rewrites int // JSON documents rewritten
}

// Compressor walks the asset root.
type Compressor struct {
	assetDir    string
	urlPrefix   string
	maxBytes    int64
	articlesDir string
	indexFile   string
	strategies  func(Format) []Strategy

	recorder  metrics.Recorder
	publisher events.Publisher
	history   history.Store
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Compressor.
type Option func(*Compressor)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option { return func(c *Compressor) { c.recorder = r } }

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option { return func(c *Compressor) { c.publisher = p } }

// WithHistory sets the run history store.
func WithHistory(s history.Store) Option { return func(c *Compressor) { c.history = s } }

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option { return func(c *Compressor) { c.logger = l } }

// New creates a compressor from configuration.
func New(cfg *config.Config, opts ...Option) *Compressor {
	c := &Compressor{
		assetDir:    cfg.Assets.Dir,
		urlPrefix:   cfg.Assets.URLPrefix,
		maxBytes:    cfg.Images.MaxBytes,
		articlesDir: cfg.Output.ArticlesDir,
		indexFile:   cfg.Output.IndexFile,
		strategies:  Strategies,
		recorder:    metrics.NoopRecorder{},
		publisher:   events.NoopPublisher{},
		history:     history.NoopStore{},
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes every PNG, JPEG and WebP file under the asset root. Per-image
// failures are logged and counted; only an unreadable asset root is an error.
func (c *Compressor) Run(ctx context.Context) (Report, error) {
	start := c.now()
	rep := Report{RunID: uuid.NewString()}
	log := c.logger.With(logfields.RunID(rep.RunID))

	err := c.run(ctx, log, &rep)

	d := c.now().Sub(start)
	outcome := metrics.OutcomeRegenerated
	if err != nil {
		outcome = metrics.OutcomeFailed
	} else if rep.Renamed == 0 && rep.Saved == 0 {
		outcome = metrics.OutcomeUpToDate
	}
	c.recorder.ObserveRunDuration(history.KindCompress, d)
	c.recorder.IncRunOutcome(history.KindCompress, outcome)
	run := history.Run{
		ID: rep.RunID, Kind: history.KindCompress, StartedAt: start, Duration: d,
		Outcome: string(outcome), Assets: len(rep.Images), Skipped: outcome == metrics.OutcomeUpToDate,
	}
	if err != nil {
		run.Error = err.Error()
	}
	if herr := c.history.Record(context.WithoutCancel(ctx), run); herr != nil {
		log.Warn("Failed to record run history", logfields.Error(herr))
	}
	return rep, err
}

func (c *Compressor) run(ctx context.Context, log *slog.Logger, rep *Report) error {
	paths, err := c.collect()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		log.Info("No images to compress", logfields.Path(c.assetDir))
		return nil
	}
	log.Info("Compressing images", logfields.Count(len(paths)), logfields.Bytes(c.maxBytes))

	var before, after int64
	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := c.process(rel)
		before += out.Before
		after += out.After
		rep.Images = append(rep.Images, out)
		c.recorder.IncImageResult(out.Result)

		switch out.Result {
		case metrics.ImageFailed:
			rep.Failed++
			log.Warn("Image left unmodified", logfields.Asset(rel), logfields.Error(out.Err))
			continue
		case metrics.ImageAlreadySmall:
			log.Debug("Image already within budget", logfields.Asset(rel), logfields.Bytes(out.Before))
			continue
		case metrics.ImageKept:
			log.Info("No smaller encoding found", logfields.Asset(rel), logfields.Bytes(out.Before))
			continue
		}

		attrs := []any{logfields.Asset(out.NewPath), "before", out.Before, "after", out.After}
		if out.After > c.maxBytes {
			attrs = append(attrs, "over_budget", true)
		}
		log.Info("Compressed image", attrs...)

		if out.Result == metrics.ImageRenamed {
			rep.Renamed++
			n, err := c.renameReferences(ctx, log, out.Path, out.NewPath)
			rep.Rewrites += n
			if err != nil {
				log.Warn("Failed to rewrite references", logfields.Asset(out.Path), logfields.Error(err))
			}
		}
	}

	rep.Saved = before - after
	c.recorder.AddImageBytesSaved(rep.Saved)
	log.Info("Image compression complete",
		"before", before, "after", after, "saved", rep.Saved, "renamed", rep.Renamed, "failed", rep.Failed)
	return nil
}

// collect lists compressible images as slash-separated paths in walk order.
func (c *Compressor) collect() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(c.assetDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if _, ok := FormatOf(filepath.Ext(p)); !ok {
			return nil
		}
		rel, err := filepath.Rel(c.assetDir, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ferrors.FileSystemError("cannot read asset root").WithCause(err).
			Fatal().WithContext("path", c.assetDir).Build()
	}
	return paths, nil
}

// process runs the Inspect → encode state machine for one image.
func (c *Compressor) process(rel string) Outcome {
	out := Outcome{Path: rel, NewPath: rel}
	abs := filepath.Join(c.assetDir, filepath.FromSlash(rel))

	data, err := os.ReadFile(abs)
	if err != nil {
		return failed(out, err)
	}
	out.Before, out.After = int64(len(data)), int64(len(data))
	if out.Before <= c.maxBytes {
		out.Result = metrics.ImageAlreadySmall
		return out
	}

	src, _ := FormatOf(filepath.Ext(rel))
	img, err := Decode(bytes.NewReader(data), src)
	if err != nil {
		return failed(out, fmt.Errorf("decode: %w", err))
	}

	best, attempts := c.encode(img, src, rel)
	out.Attempts = attempts
	if best == nil {
		return failed(out, ErrNoEncoding)
	}
	if int64(len(best.data)) >= out.Before {
		out.Result = metrics.ImageKept
		return out
	}

	newRel := rel
	if best.format != src {
		newRel = strings.TrimSuffix(rel, filepath.Ext(rel)) + best.format.Extension()
	}
	newAbs := filepath.Join(c.assetDir, filepath.FromSlash(newRel))
	if err := storage.WriteFileAtomic(newAbs, best.data, 0o644); err != nil {
		return failed(out, err)
	}
	if newRel != rel {
		if err := os.Remove(abs); err != nil {
			return failed(out, fmt.Errorf("remove original: %w", err))
		}
		out.Result = metrics.ImageRenamed
	} else {
		out.Result = metrics.ImageCompressed
	}
	out.NewPath = newRel
	out.After = int64(len(best.data))
	return out
}

type candidate struct {
	format Format
	data   []byte
}

// encode returns the first result within budget, else the smallest. A
// cross-format result is not considered when its target name is taken.
func (c *Compressor) encode(img image.Image, src Format, rel string) (*candidate, []Attempt) {
	var best *candidate
	var attempts []Attempt
	for _, s := range c.strategies(src) {
		if s.Format != src && c.targetTaken(rel, s.Format) {
			continue
		}
		data, err := s.Encode(img)
		if err != nil || len(data) == 0 {
			c.logger.Debug("Encode attempt failed", logfields.Asset(rel), logfields.Format(s.Name), logfields.Error(err))
			continue
		}
		attempts = append(attempts, Attempt{Strategy: s.Name, Format: s.Format, Size: len(data)})
		if best == nil || len(data) < len(best.data) {
			best = &candidate{format: s.Format, data: data}
		}
		if int64(len(data)) <= c.maxBytes {
			return &candidate{format: s.Format, data: data}, attempts
		}
	}
	return best, attempts
}

func (c *Compressor) targetTaken(rel string, f Format) bool {
	target := strings.TrimSuffix(rel, filepath.Ext(rel)) + f.Extension()
	return storage.Exists(filepath.Join(c.assetDir, filepath.FromSlash(target)))
}

func failed(out Outcome, err error) Outcome {
	out.Result = metrics.ImageFailed
	out.Err = ferrors.ImageError("image left unmodified").WithCause(err).
		Warning().WithContext("asset", out.Path).Build()
	out.NewPath = out.Path
	out.After = out.Before
	return out
}
