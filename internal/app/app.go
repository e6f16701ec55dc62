// Package app wires all Macca subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and sweeps old audio until the context ends,
// and Shutdown tears everything down in order.
//
// For testing, inject implementations via functional options (WithStore,
// WithRegistry, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/macca/internal/api"
	"github.com/MrWong99/macca/internal/blob"
	"github.com/MrWong99/macca/internal/config"
	"github.com/MrWong99/macca/internal/health"
	"github.com/MrWong99/macca/internal/lesson"
	"github.com/MrWong99/macca/internal/observe"
	"github.com/MrWong99/macca/internal/session"
	"github.com/MrWong99/macca/internal/srs"
	"github.com/MrWong99/macca/internal/store"
	"github.com/MrWong99/macca/internal/store/memstore"
	"github.com/MrWong99/macca/internal/store/postgres"
	"github.com/MrWong99/macca/internal/store/sqlite"
	"github.com/MrWong99/macca/internal/turn"
)

const (
	// readHeaderTimeout bounds how long a client may take to send headers.
	readHeaderTimeout = 10 * time.Second
	// shutdownGrace is how long in-flight requests get to finish once Run's
	// context is cancelled.
	shutdownGrace = 10 * time.Second
)

// App owns all subsystem lifetimes and serves the coaching API.
type App struct {
	cfg     *config.Config
	version string

	// Subsystems, initialised in New and torn down in Shutdown.
	store     store.Store
	clips     *blob.FS
	janitor   *blob.Janitor
	providers *config.Providers
	starter   *session.Starter
	deck      *srs.Scheduler
	turns     *turn.Orchestrator
	api       *api.Server
	health    *health.Handler

	registry       *config.Registry
	metrics        *observe.Metrics
	metricsHandler http.Handler
	level          *slog.LevelVar

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of opening one from config. The caller
// keeps ownership; Shutdown does not close it.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithRegistry sets the provider registry consulted for non-mock providers.
// Without one only "mock" providers can be selected.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics sets the metrics sink and the handler served at /metrics. A nil
// handler leaves /metrics unregistered.
func WithMetrics(m *observe.Metrics, handler http.Handler) Option {
	return func(a *App) {
		a.metrics = m
		a.metricsHandler = handler
	}
}

// WithLogLevel hands New the level variable behind the process logger so
// that a config reload can change verbosity.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithVersion sets the version reported by the health probes.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: store connection and schema
// migration, blob directory creation, lesson loading and provider selection.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, version: "dev"}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = config.NewRegistry()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(cfg.Server.LogLevel.Slog())
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Blob storage ──────────────────────────────────────────────────
	clips, err := blob.NewFS(cfg.Blob.Dir)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init blob storage: %w", err)
	}
	a.clips = clips
	a.janitor = blob.NewJanitor(clips,
		blob.WithMaxAge(cfg.Blob.MaxAge),
		blob.WithInterval(cfg.Blob.CleanupInterval),
	)

	// ── 3. Lessons ───────────────────────────────────────────────────────
	lessons, err := loadLessons(cfg.Lessons.File)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: load lessons: %w", err)
	}

	// ── 4. Providers ─────────────────────────────────────────────────────
	a.providers, err = config.Select(cfg, a.registry, clips, a.metrics)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: select providers: %w", err)
	}

	// ── 5. Pipeline ──────────────────────────────────────────────────────
	a.deck = srs.New(a.store, srs.WithMetrics(a.metrics))
	a.starter = session.NewStarter(a.store, a.store, lessons)
	a.turns, err = turn.New(a.providers.Generator, a.store,
		turn.WithRecognizer(a.providers.Recognizer),
		turn.WithSynthesizer(a.providers.Synthesizer),
		turn.WithBlobStore(clips),
		turn.WithDeck(a.deck),
		turn.WithMetrics(a.metrics),
	)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: build orchestrator: %w", err)
	}

	// ── 6. HTTP surface ──────────────────────────────────────────────────
	apiOpts := []api.Option{api.WithRecognizer(a.providers.Recognizer)}
	if cfg.Server.AllowAnonymous {
		apiOpts = append(apiOpts, api.WithAnonymousUser(cfg.Server.AnonymousUser))
	}
	a.api = api.New(a.store, a.starter, a.turns, a.deck, apiOpts...)
	a.health = health.New(
		map[string]any{
			"version":  a.version,
			"use_mock": cfg.UseMock,
			"stt":      a.providers.STTLabel,
			"llm":      a.providers.LLMLabel,
			"tts":      a.providers.TTSLabel,
		},
		health.PingChecker("storage", a.store),
		health.WritableDirChecker("audio_dir", a.clips.Dir()),
	)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore opens the configured back-end unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	var err error
	switch a.cfg.Storage.Driver {
	case config.StoragePostgres:
		var pg *postgres.Store
		if pg, err = postgres.New(ctx, a.cfg.Storage.DSN); err == nil {
			a.store = pg
		}
	case config.StorageSQLite:
		var lite *sqlite.Store
		if lite, err = sqlite.Open(ctx, a.cfg.Storage.DSN); err == nil {
			a.store = lite
		}
	default:
		a.store = memstore.New()
		slog.Warn("using in-memory storage, data is lost on restart")
	}
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.store.Close)
	slog.Info("store ready", "driver", a.cfg.Storage.Driver)
	return nil
}

// loadLessons reads path, or returns the embedded catalogue when path is empty.
func loadLessons(path string) (*lesson.Catalog, error) {
	if path == "" {
		return lesson.Builtin(), nil
	}
	c, err := lesson.LoadFile(path)
	if err != nil {
		return nil, err
	}
	slog.Info("loaded lessons", "path", path, "count", len(c.List()))
	return c, nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Providers returns the selected capability set.
func (a *App) Providers() *config.Providers { return a.providers }

// Handler returns the root HTTP handler: the API, health probes, stored audio
// and metrics behind the observe and CORS middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.api.Register(mux)
	a.health.Register(mux)
	mux.Handle("GET "+blob.URLPrefix, a.clips.Handler())
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	return api.CORS(a.cfg.Server.CORSOrigins)(observe.Middleware(a.metrics)(mux))
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and runs the audio janitor until ctx is cancelled or the
// listener fails. On cancellation, in-flight requests get [shutdownGrace] to
// finish.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return a.janitor.Run(gctx) })

	return g.Wait()
}

// ApplyConfig reacts to a changed config file. The log level and lesson
// catalogue change in place; every other difference is logged as needing a
// restart.
func (a *App) ApplyConfig(old, updated *config.Config) {
	diff := config.Diff(old, updated)
	if diff.LogLevelChanged {
		a.level.Set(diff.NewLogLevel.Slog())
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.LessonsChanged {
		_ = a.ReloadLessons(diff.NewLessonsFile)
	}
	if len(diff.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", diff.RestartRequired)
	}
}

// ReloadLessons swaps in the catalogue at path, or the embedded one when path
// is empty. On error the current catalogue stays in place.
func (a *App) ReloadLessons(path string) error {
	lessons, err := loadLessons(path)
	if err != nil {
		slog.Error("lesson reload failed, keeping the current catalogue", "path", path, "err", err)
		return err
	}
	a.starter.SetLessons(lessons)
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases whatever New managed to open before failing.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
