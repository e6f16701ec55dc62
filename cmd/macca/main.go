// Command macca is the main entry point for the Macca coaching backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/macca/internal/app"
	"github.com/MrWong99/macca/internal/config"
	"github.com/MrWong99/macca/internal/observe"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (empty runs with mock providers)")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("macca", version)
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	// The logger exists before the config does so that the watcher's callback
	// can change its level later.
	level := new(slog.LevelVar)
	slog.SetDefault(newLogger(level))

	var (
		cfg     *config.Config
		watcher *config.Watcher
		appRef  *app.App
	)
	if *configPath == "" {
		cfg = config.Default()
		fmt.Fprintln(os.Stderr, "macca: no -config given, running with mock providers and in-memory storage")
	} else {
		var err error
		watcher, err = config.NewWatcher(*configPath,
			func(old, updated *config.Config) {
				if appRef != nil {
					appRef.ApplyConfig(old, updated)
				}
			},
			config.WithLessonsHook(func(path string) {
				if appRef != nil {
					_ = appRef.ReloadLessons(path)
				}
			}),
		)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "macca: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
			} else {
				fmt.Fprintf(os.Stderr, "macca: %v\n", err)
			}
			return 1
		}
		cfg = watcher.Current()
	}
	level.Set(cfg.Server.LogLevel.Slog())

	slog.Info("macca starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tele, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Exporter:       string(cfg.Tracing.Exporter),
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		Headers:        cfg.Tracing.Headers,
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tele.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(tele.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	application, err := app.New(ctx, cfg,
		app.WithRegistry(reg),
		app.WithMetrics(metrics, tele.MetricsHandler),
		app.WithLogLevel(level),
		app.WithVersion(version),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	appRef = application

	printStartupSummary(cfg, application.Providers())
	slog.Info("server ready, press Ctrl+C to shut down")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(gctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, ps *config.Providers) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Macca, startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Mock mode", fmt.Sprint(cfg.UseMock))
	printRow("STT", ps.STTLabel)
	printRow("LLM", ps.LLMLabel)
	printRow("TTS", ps.TTSLabel)
	printRow("Storage", string(cfg.Storage.Driver))
	printRow("Audio dir", cfg.Blob.Dir)
	if cfg.Lessons.File != "" {
		printRow("Lessons", cfg.Lessons.File)
	} else {
		printRow("Lessons", "(built-in)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
