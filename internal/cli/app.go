package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/stageload/internal/config"
	"github.com/JonMunkholm/stageload/internal/core"
	"github.com/JonMunkholm/stageload/internal/loader"
	"github.com/JonMunkholm/stageload/internal/notify"
	"github.com/JonMunkholm/stageload/internal/routing"
	"github.com/JonMunkholm/stageload/internal/schema"
	"github.com/JonMunkholm/stageload/internal/storage"
	"github.com/JonMunkholm/stageload/internal/store"
	"github.com/JonMunkholm/stageload/internal/transform"
	"github.com/JonMunkholm/stageload/internal/validation"
	"github.com/JonMunkholm/stageload/internal/watch"
	"github.com/jackc/pgx/v5/pgxpool"
)

// App is the wired ingestion stack shared by the server and stagectl.
type App struct {
	Config     *config.Config
	Pool       *pgxpool.Pool
	Stores     *store.Stores
	Resolver   *schema.Resolver
	Engine     *validation.Engine
	Transforms *transform.Registry
	Pipeline   *core.Pipeline
}

// Open connects to the database, applies migrations when configured and
// wires the pipeline.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.Database.AutoMigrate {
		if err := store.Migrate(cfg.Database.URL, store.DirectionUp); err != nil {
			return nil, err
		}
	}

	pool, err := Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	app, err := build(cfg, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return app, nil
}

// Connect opens and pings a pgx pool.
func Connect(ctx context.Context, db config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(db.MaxConns)
	poolConfig.MinConns = int32(db.MinConns)
	poolConfig.MaxConnLifetime = db.MaxConnLifetime
	poolConfig.MaxConnIdleTime = db.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(db.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

func build(cfg *config.Config, pool *pgxpool.Pool) (*App, error) {
	stores := store.New(pool)

	router, err := routing.NewRouter(routing.Rule{
		Enabled:  cfg.Routing.Enabled,
		Pattern:  cfg.Routing.Pattern,
		Template: cfg.Routing.Template,
		Prefix:   cfg.Routing.Prefix,
	})
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:     cfg,
		Pool:       pool,
		Stores:     stores,
		Resolver:   schema.NewResolver(pool),
		Engine:     validation.NewEngine(stores.Rules, stores.Issues),
		Transforms: transform.NewRegistry(),
	}

	deps := core.Deps{
		Manifests:   stores.Manifests,
		Rules:       stores.Rules,
		Issues:      stores.Issues,
		Router:      router,
		Namer:       routing.NewNamer(cfg.Naming.Prefix),
		Validator:   app.Engine,
		Transforms:  app.Transforms,
		Resolver:    app.Resolver,
		Loader:      loader.New(pool),
		TempDir:     cfg.Ingest.TempDir,
		MaxFileSize: cfg.Ingest.MaxFileSize,
	}
	if cfg.Ingest.SerializeChecksum {
		deps.Locker = stores.Locks
	}

	if app.Pipeline, err = core.NewPipeline(deps); err != nil {
		return nil, err
	}
	return app, nil
}

// Close releases transformers and the pool.
func (a *App) Close() {
	a.Transforms.Close()
	a.Pool.Close()
}

// NewWatcher builds the watch folder with its archive mirror and
// notifier.
func (a *App) NewWatcher(ctx context.Context) (*watch.Watcher, error) {
	cfg := a.Config

	var mirror storage.Mirror = storage.Nop{}
	if cfg.Storage.Enabled {
		m, err := storage.NewS3Mirror(ctx, storage.Config{
			Bucket:          cfg.Storage.Bucket,
			Prefix:          cfg.Storage.Prefix,
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			UsePathStyle:    cfg.Storage.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		mirror = m
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(notify.Config{
			URL:        cfg.Notify.WebhookURL,
			Timeout:    cfg.Notify.Timeout,
			RetryCount: cfg.Notify.RetryCount,
			OnSuccess:  cfg.Notify.OnSuccess,
			OnFailure:  cfg.Notify.OnFailure,
		})
	}

	return watch.New(WatchConfig(cfg.Watch), a.Pipeline, mirror, notifier), nil
}

// WatchConfig converts the watch settings.
func WatchConfig(c config.WatchConfig) watch.Config {
	return watch.Config{
		Enabled:        c.Enabled,
		Root:           c.Root,
		PollInterval:   c.PollInterval,
		UseMarkers:     c.UseMarkers,
		StabilityDelay: c.StabilityDelay,
		Workers:        c.Workers,
	}
}

// RetentionPolicy converts the retention settings.
func RetentionPolicy(c config.RetentionConfig) watch.RetentionPolicy {
	return watch.RetentionPolicy{
		ArchiveDays:   c.ArchiveDays,
		ErrorDays:     c.ErrorDays,
		CheckInterval: c.CheckInterval,
	}
}
