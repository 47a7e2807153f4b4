// Package commands implements the pmeyes subcommands.
package commands

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pmeyes/internal/config"
	"git.home.luguber.info/inful/pmeyes/internal/events"
	ferrors "git.home.luguber.info/inful/pmeyes/internal/foundation/errors"
	"git.home.luguber.info/inful/pmeyes/internal/history"
	"git.home.luguber.info/inful/pmeyes/internal/logfields"
	"git.home.luguber.info/inful/pmeyes/internal/metrics"
)

// Global carries state shared by all subcommands. It is filled in by
// CLI.AfterApply and released by Close.
type Global struct {
	Out    io.Writer
	Logger *slog.Logger
	Config *config.Config

	Registry  *prom.Registry
	Recorder  metrics.Recorder
	Publisher events.Publisher
	History   history.Store
}

// CLI is the root command line.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"pmeyes.yaml"`
	Verbose bool             `short:"v" help:"Enable debug logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Convert        ConvertCmd        `cmd:"" help:"Convert markdown articles to JSON"`
	CompressImages CompressImagesCmd `cmd:"" name:"compress-images" help:"Recompress oversized images under the asset root"`
	Locales        LocalesCmd        `cmd:"" help:"Generate locale files"`
	Serve          ServeCmd          `cmd:"" help:"Serve content and the client with rebuild on change"`
	History        HistoryCmd        `cmd:"" help:"Show recent runs"`
}

// AfterApply loads configuration, sets up logging and opens the
// metrics, event and history backends.
func (c *CLI) AfterApply(g *Global) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return ferrors.ConfigError("cannot load configuration").WithCause(err).
			WithContext("path", c.Config).Build()
	}
	g.Config = cfg
	g.Logger = newLogger(cfg.Logging, c.Verbose)
	slog.SetDefault(g.Logger)
	if g.Out == nil {
		g.Out = os.Stdout
	}

	g.Registry = prom.NewRegistry()
	g.Recorder = metrics.NewPrometheusRecorder(g.Registry)

	if g.Publisher, err = events.New(cfg.Events); err != nil {
		return ferrors.NetworkError("cannot connect to NATS").WithCause(err).
			Fatal().WithContext("url", cfg.Events.NATSURL).Build()
	}
	if g.History, err = history.Open(cfg.History.Path); err != nil {
		return ferrors.StoreError("cannot open run history").WithCause(err).
			Fatal().WithContext("path", cfg.History.Path).Build()
	}
	return nil
}

// Close flushes metrics and releases backends. Safe on a partially
// initialized Global.
func (g *Global) Close() {
	if g.Config != nil && g.Registry != nil {
		if err := metrics.WriteTextfile(g.Config.Metrics.Textfile, g.Registry); err != nil {
			g.logger().Warn("Failed to write metrics textfile",
				logfields.Path(g.Config.Metrics.Textfile), logfields.Error(err))
		}
	}
	var errs []error
	if g.Publisher != nil {
		errs = append(errs, g.Publisher.Close())
	}
	if g.History != nil {
		errs = append(errs, g.History.Close())
	}
	if err := errors.Join(errs...); err != nil {
		g.logger().Warn("Failed to release backends", logfields.Error(err))
	}
}

func (g *Global) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func newLogger(lc config.LoggingConfig, verbose bool) *slog.Logger {
	level := config.NormalizeLogLevel(lc.Level).Slog()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if config.NormalizeLogFormat(lc.Format) == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
