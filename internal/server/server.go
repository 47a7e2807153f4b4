// Package server serves the generated content over HTTP for local preview.
//
// It builds once on start, rebuilds after content changes settle and,
// optionally, on a fixed interval. Every successful build reloads the
// in-memory catalog behind the /api routes.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/pmeyes/internal/catalog"
	"git.home.luguber.info/inful/pmeyes/internal/config"
	ferrors "git.home.luguber.info/inful/pmeyes/internal/foundation/errors"
	"git.home.luguber.info/inful/pmeyes/internal/locales"
	"git.home.luguber.info/inful/pmeyes/internal/logfields"
	"git.home.luguber.info/inful/pmeyes/internal/metrics"
	"git.home.luguber.info/inful/pmeyes/internal/pipeline"
	"git.home.luguber.info/inful/pmeyes/internal/version"
	"git.home.luguber.info/inful/pmeyes/internal/watch"
)

const shutdownTimeout = 5 * time.Second

// Builder regenerates the content. *pipeline.Pipeline satisfies it.
type Builder interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

// Server is the preview and API server.
type Server struct {
	cfg      *config.Config
	builder  Builder
	catalog  *catalog.Catalog
	locales  atomic.Pointer[locales.Bundle]
	registry *prom.Registry
	logger   *slog.Logger
	errors   *ferrors.HTTPErrorAdapter
	started  time.Time
	lastErr  atomic.Pointer[string]
	debounce time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithRegistry exposes reg on /metrics.
func WithRegistry(reg *prom.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithDebounce overrides the content watch quiet period.
func WithDebounce(d time.Duration) Option {
	return func(s *Server) { s.debounce = d }
}

// New creates a server that rebuilds through b.
func New(cfg *config.Config, b Builder, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		builder: b,
		catalog: catalog.New(cfg.Output.IndexFile, cfg.Output.ArticlesDir),
		logger:  slog.Default(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.errors = ferrors.NewHTTPErrorAdapter(s.logger)
	return s
}

// Catalog returns the catalog behind the API routes.
func (s *Server) Catalog() *catalog.Catalog { return s.catalog }

// Rebuild runs the builder and reloads the catalog and locale bundle.
func (s *Server) Rebuild(ctx context.Context, trigger string) error {
	log := s.logger.With(slog.String("trigger", trigger))
	res, err := s.builder.Run(ctx)
	if err != nil {
		msg := err.Error()
		s.lastErr.Store(&msg)
		return err
	}
	s.lastErr.Store(nil)

	if err := s.catalog.Load(); err != nil {
		return ferrors.RuntimeError("cannot load article index").WithCause(err).
			WithContext("path", s.cfg.Output.IndexFile).Build()
	}
	s.reloadLocales(log)

	log.Info("Content ready",
		logfields.RunID(res.RunID),
		slog.Bool("regenerated", res.Regenerated),
		slog.String("reason", string(res.Reason)),
		logfields.Count(len(s.catalog.All())))
	return nil
}

func (s *Server) reloadLocales(log *slog.Logger) {
	lc := s.cfg.Locales
	b, err := locales.LoadBundle(lc.OutputDir, lc.Base, lc.Languages)
	if err != nil {
		log.Debug("Locales unavailable", logfields.Error(err))
		s.locales.Store(nil)
		return
	}
	s.locales.Store(b)
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger, s.errors))

	r.Get("/healthz", s.handleHealth)
	if s.registry != nil {
		r.Handle("/metrics", metrics.HTTPHandler(s.registry))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/articles", s.handleArticles)
		r.Get("/articles/{slug}", s.handleArticle)
		r.Get("/search", s.handleSearch)
		r.Get("/tags", s.handleTags)
		r.Get("/folders", s.handleFolders)
		r.Get("/tree", s.handleTree)
		r.Get("/related/{slug}", s.handleRelated)
		r.Get("/locales", s.handleLocales)
		r.Get("/locales/{lang}", s.handleLocale)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			s.errors.WriteErrorResponse(w, r, ferrors.NotFoundError("no such endpoint").
				WithContext("path", r.URL.Path).Build())
		})
	})

	r.Handle("/data/*", dataHandler(s.cfg.Output.Root()))
	r.Handle("/*", spaHandler{dir: s.cfg.Serve.StaticDir})
	return r
}

// Run builds, then serves until ctx is done. A failing initial build is
// returned; later build failures are logged and the previous content keeps
// being served.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Rebuild(ctx, "startup"); err != nil {
		return err
	}

	var sched *scheduler
	if interval := s.cfg.Serve.RebuildInterval; interval > 0 {
		var err error
		if sched, err = newScheduler(s.logger); err != nil {
			return err
		}
		if err := sched.every(ctx, interval, "rebuild", func(c context.Context) {
			s.rebuildLogged(c, "interval")
		}); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", s.cfg.Serve.Addr)
	if err != nil {
		if sched != nil {
			_ = sched.s.Shutdown()
		}
		return ferrors.NetworkError("cannot listen").WithCause(err).
			Fatal().WithContext("addr", s.cfg.Serve.Addr).Build()
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Serving", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		opts := watch.Options{Debounce: s.debounce, Recursive: true, Logger: s.logger}
		return watch.Run(gctx, []string{s.cfg.Content.Root}, opts, func(c context.Context) {
			s.rebuildLogged(c, "watch")
		})
	})
	if sched != nil {
		g.Go(func() error { return sched.run(gctx) })
	}
	return g.Wait()
}

func (s *Server) rebuildLogged(ctx context.Context, trigger string) {
	if err := s.Rebuild(ctx, trigger); err != nil && ctx.Err() == nil {
		s.logger.Error("Rebuild failed", slog.String("trigger", trigger), logfields.Error(err))
	}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	Articles  int       `json:"articles"`
	Updated   time.Time `json:"lastUpdated"`
	LastError string    `json:"lastError,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "healthy",
		Version:  version.Version,
		Uptime:   time.Since(s.started).Truncate(time.Second).String(),
		Articles: len(s.catalog.All()),
		Updated:  s.catalog.LastUpdated(),
	}
	if msg := s.lastErr.Load(); msg != nil {
		resp.Status = "degraded"
		resp.LastError = *msg
	}
	writeJSON(w, http.StatusOK, resp)
}
