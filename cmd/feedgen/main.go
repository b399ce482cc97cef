package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukerupert/feedgen/internal"
	"github.com/dukerupert/feedgen/internal/domain"
	"github.com/dukerupert/feedgen/internal/events"
	"github.com/dukerupert/feedgen/internal/postgres"
	"github.com/dukerupert/feedgen/internal/server"
	"github.com/dukerupert/feedgen/internal/service"
	"github.com/dukerupert/feedgen/internal/sqlite"
	"github.com/dukerupert/feedgen/internal/storage"
	"github.com/dukerupert/feedgen/internal/telemetry"
	"github.com/dukerupert/feedgen/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const usage = `usage: feedgen <command> [flags]

commands:
  serve     serve feeds over HTTP and regenerate scheduled profiles (default)
  export    run export profiles once and exit
  migrate   apply catalog schema migrations
`

// catalog bundles the catalog collaborators of one backend.
type catalog struct {
	store  domain.CatalogStore
	prices domain.PriceService
	sites  domain.SiteService
	close  func()
}

func run(args []string) error {
	command := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	cleanupSentry, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:              cfg.Sentry.DSN,
		Enabled:          cfg.Sentry.Enabled,
		Environment:      cfg.Sentry.Environment,
		Release:          cfg.Sentry.Release,
		SampleRate:       cfg.Sentry.SampleRate,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		Debug:            cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer cleanupSentry()
	defer telemetry.RecoverWithSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "migrate":
		return runMigrate(cfg, logger)
	case "export":
		return runExport(ctx, cfg, logger, args)
	case "serve":
		return runServe(ctx, cfg, logger, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func runMigrate(cfg *internal.Config, logger *slog.Logger) error {
	driver, dialect := "pgx", "postgres"
	if cfg.Catalog.Driver == "sqlite" {
		driver, dialect = sqlite.DriverName, "sqlite3"
	}

	logger.Info("Connecting to database...", "driver", cfg.Catalog.Driver)
	db, err := sql.Open(driver, cfg.Catalog.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(db, dialect); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")
	return nil
}

func runExport(ctx context.Context, cfg *internal.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	profile := fs.String("profile", "", "profile to run (default: all profiles)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	deps, err := newDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	if *profile != "" {
		result, err := deps.feeds.RunProfile(ctx, *profile)
		if result != nil {
			logResult(logger, result)
		}
		return errors.Join(err, deps.metrics.WriteTextfile(cfg.Metrics.TextfilePath))
	}

	results, err := deps.feeds.RunAll(ctx)
	for _, r := range results {
		logResult(logger, r)
	}
	return errors.Join(err, deps.metrics.WriteTextfile(cfg.Metrics.TextfilePath))
}

func runServe(ctx context.Context, cfg *internal.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	runOnStart := fs.Bool("run-on-start", false, "regenerate scheduled profiles immediately")
	if err := fs.Parse(args); err != nil {
		return err
	}

	deps, err := newDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	var jobs []worker.Job
	for _, p := range deps.feeds.Profiles() {
		jobs = append(jobs, worker.Job{Profile: p.Name, Interval: p.Schedule})
	}
	runner := worker.RunnerFunc(func(ctx context.Context, name string) error {
		_, err := deps.feeds.RunProfile(ctx, name)
		return err
	})
	scheduler := worker.NewScheduler(runner, jobs, worker.Config{RunOnStart: *runOnStart}, logger)

	srv := server.New(deps.feeds, server.Config{
		Port:         cfg.Port,
		DocumentRoot: cfg.Feed.DocumentRoot,
		Registry:     deps.metrics.Registry(),
		Published:    deps.storage,
	}, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedErr := make(chan error, 1)
	go func() {
		err := scheduler.Start(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		schedErr <- err
	}()

	// The scheduler stops with the server, whichever way the server exits.
	err = srv.Start(ctx)
	cancel()
	return errors.Join(err, <-schedErr)
}

// deps holds the wired collaborators shared by export and serve.
type deps struct {
	feeds   service.FeedService
	storage storage.Storage
	metrics *telemetry.FeedMetrics
	closers []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func newDeps(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{metrics: telemetry.NewFeedMetrics(cfg.Metrics.Namespace, nil)}

	profiles, err := internal.LoadProfiles(cfg.ProfilesFile)
	if err != nil {
		return nil, err
	}
	logger.Info("Profiles loaded", "file", cfg.ProfilesFile, "count", len(profiles.All()))

	cat, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, cat.close)

	store, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		d.close()
		return nil, fmt.Errorf("storage initialization failed: %w", err)
	}
	d.storage = store

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATS.URL != "" {
		p, err := events.Connect(cfg.NATS.URL, cfg.NATS.Subject, cfg.NATS.FlushTimeout, logger)
		if err != nil {
			d.close()
			return nil, err
		}
		publisher = p
		d.closers = append(d.closers, func() {
			if err := p.Close(); err != nil {
				logger.Warn("nats drain failed", "error", err)
			}
		})
		logger.Info("NATS connected", "subject", cfg.NATS.Subject)
	}

	d.feeds, err = service.NewFeedService(service.FeedServiceConfig{
		Store:        cat.store,
		Prices:       cat.prices,
		Sites:        cat.sites,
		Profiles:     profiles,
		Storage:      store,
		Events:       publisher,
		Metrics:      d.metrics,
		Logger:       logger,
		SiteID:       cfg.Feed.SiteID,
		Protocol:     cfg.Feed.Protocol,
		DocumentRoot: cfg.Feed.DocumentRoot,
	})
	if err != nil {
		d.close()
		return nil, fmt.Errorf("failed to initialize feed service: %w", err)
	}

	return d, nil
}

func openCatalog(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (*catalog, error) {
	logger.Info("Connecting to catalog database...", "driver", cfg.Catalog.Driver)

	if cfg.Catalog.Driver == "sqlite" {
		db, err := sqlite.Open(cfg.Catalog.DatabaseUrl)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		return &catalog{
			store:  sqlite.NewCatalogStore(db),
			prices: sqlite.NewPriceService(db),
			sites:  sqlite.NewSiteService(db),
			close:  func() { db.Close() },
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Catalog.DatabaseUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	return &catalog{
		store:  postgres.NewCatalogStore(pool),
		prices: postgres.NewPriceService(pool),
		sites:  postgres.NewSiteService(pool),
		close:  pool.Close,
	}, nil
}

func logResult(logger *slog.Logger, r *service.RunResult) {
	for _, f := range r.Feeds {
		attrs := []any{"profile", r.Profile, "run_id", r.RunID, "format", f.Format, "path", f.Path, "records", f.Records}
		if f.URL != "" {
			attrs = append(attrs, "url", f.URL)
		}
		if f.Error != "" {
			logger.Error("feed failed", append(attrs, "error", f.Error)...)
			continue
		}
		logger.Info("feed written", attrs...)
	}
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
