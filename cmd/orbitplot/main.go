package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jyannick/OrbitPlot/internal/api"
	"github.com/jyannick/OrbitPlot/internal/astro"
	"github.com/jyannick/OrbitPlot/internal/cache"
	"github.com/jyannick/OrbitPlot/internal/config"
	"github.com/jyannick/OrbitPlot/internal/ephemeris"
	"github.com/jyannick/OrbitPlot/internal/plot"
	"github.com/jyannick/OrbitPlot/internal/session"
	"github.com/jyannick/OrbitPlot/internal/stream"
	"github.com/jyannick/OrbitPlot/internal/tle"
	"github.com/jyannick/OrbitPlot/web"
)

func main() {
	configPath := flag.String("config", "", "optional config file (yaml, toml or json)")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: &level,
	}))

	cfg, err := config.Load(*configPath, logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	rt, err := astro.Init(cfg.Astro, logger)
	if err != nil {
		logger.Error("starting astro runtime", "error", err)
		os.Exit(1)
	}

	generator, err := ephemeris.NewGenerator(rt, logger)
	if err != nil {
		logger.Error("creating ephemeris generator", "error", err)
		os.Exit(1)
	}
	generator.MaxSamples = cfg.Ephemeris.MaxSamples

	var (
		computer session.Computer = generator
		results  *cache.ResultCache
	)
	if cfg.Cache.Enabled {
		results = cache.New(generator, cfg.Cache, logger)
		computer = results
	}

	sessions := session.NewManager(computer, cfg.MaxSessions, logger)
	streamHandler := stream.NewHandler(sessions, cfg.Stream, logger)

	var catalog *tle.Catalog
	if cfg.TLE.FetchEnabled {
		catalog = tle.NewCatalog(tle.NewFetcher(cfg.TLE.SourceURL, logger), cfg.TLE.CacheTTL, logger)
	}

	plotter, err := plot.NewRenderer(plot.Config{})
	if err != nil {
		logger.Error("creating chart renderer", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(cfg.HTTP.Addr, logger, cfg.Auth, api.Deps{
		Generator: computer,
		Sessions:  sessions,
		Stream:    streamHandler,
		Catalog:   catalog,
		Plotter:   plotter,
		Defaults:  api.DefaultInputs(cfg.Ephemeris.Duration, cfg.Ephemeris.Step),
		Ready:     rt.Ready,
		Web:       web.Content,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if results != nil {
		go results.Start(ctx)
	}

	go func() {
		logger.Info("starting server",
			"addr", cfg.HTTP.Addr,
			"auth_enabled", cfg.Auth.Enabled,
			"tle_fetch_enabled", cfg.TLE.FetchEnabled,
			"default_duration", cfg.Ephemeris.Duration.String(),
			"default_step", cfg.Ephemeris.Step.String(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	// Sessions hold open streams; close them first so Shutdown is not left
	// waiting on long-lived connections.
	sessions.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := rt.Close(); err != nil {
		logger.Error("astro runtime shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
