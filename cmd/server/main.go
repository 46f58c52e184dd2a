package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/stageload/internal/cli"
	"github.com/JonMunkholm/stageload/internal/config"
	"github.com/JonMunkholm/stageload/internal/core"
	"github.com/JonMunkholm/stageload/internal/logging"
	"github.com/JonMunkholm/stageload/internal/rules"
	"github.com/JonMunkholm/stageload/internal/web"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"ingest_max_concurrent", cfg.Ingest.MaxConcurrent,
		"routing_enabled", cfg.Routing.Enabled,
		"watch_enabled", cfg.Watch.Enabled,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	if err := run(cfg); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := cli.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.Rules.SeedOnStart {
		if _, err := rules.SeedFile(ctx, app.Stores.Rules, cfg.Rules.File); err != nil {
			return err
		}
	}

	deps := web.Deps{
		Pipeline:  app.Pipeline,
		Manifests: app.Stores.Manifests,
		Rules:     app.Stores.Rules,
		Issues:    app.Stores.Issues,
		Reports:   app.Engine,
		Tables:    app.Resolver,
		Health:    app.Pool,
		Limiter:   core.NewIngestLimiter(cfg.Ingest.MaxConcurrent, cfg.Ingest.MaxWaitTime),
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		watcher, err := app.NewWatcher(ctx)
		if err != nil {
			return err
		}
		deps.Watch = watcher

		g.Go(func() error { return watcher.Run(gctx) })
		if cfg.Retention.Enabled {
			g.Go(func() error {
				watcher.RunRetention(gctx, cli.RetentionPolicy(cfg.Retention))
				return nil
			})
		}
	}

	server := web.NewServer(cfg, deps)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown: stop accepting requests, then wait for in-flight
	// ingests. The watch folder joins its workers on the same signal.
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown incomplete", "error", err)
		}
		return nil
	})

	return g.Wait()
}
