package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	raices "github.com/jadapache/raices-vivas"
	fiberadapter "github.com/jadapache/raices-vivas/adapters/fiber"
	"github.com/jadapache/raices-vivas/adapters/pgx"
	redisadapter "github.com/jadapache/raices-vivas/adapters/redis"
	"github.com/jadapache/raices-vivas/core"
	"github.com/jadapache/raices-vivas/internal/config"
	"github.com/jadapache/raices-vivas/pkg/logging"
	"github.com/jadapache/raices-vivas/pkg/memstore"
	"github.com/jadapache/raices-vivas/pkg/metrics"
)

const sweepInterval = 10 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the auth API, the dashboard routes and /metrics.

The server shuts down gracefully on SIGINT or SIGTERM: open dashboard
streams are closed first, then in-flight requests are drained.

Example:
  raices serve --config raices.yaml
  RAICES_STORAGE=postgres DATABASE_URL=postgres://... raices serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "raices",
	})

	registry := prometheus.NewRegistry()
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(registry)
	}

	storage, closeStorage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	rc := raices.Config{
		Secret:                cfg.Auth.Secret,
		Database:              storage,
		SessionConfig:         &core.SessionConfig{MaxAge: cfg.Auth.SessionMaxAge},
		AccessTokenTTL:        cfg.Auth.AccessTokenTTL,
		BasePath:              cfg.Auth.BasePath,
		LoginPath:             cfg.Auth.LoginPath,
		ProfileTimeout:        cfg.Auth.ProfileTimeout,
		ClearProfileOnRecheck: cfg.Auth.ClearProfileOnRecheck,
		Logger:                logger,
		Metrics:               m,
	}

	if cfg.Redis.URL != "" {
		client, err := redisadapter.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer client.Close()
		rc.CacheAdapter = redisadapter.NewCache(client, core.CacheConfig{TTL: cfg.Redis.CacheTTL})
		rc.Events = redisadapter.NewEventBus(client, logger)
		logger.Info("using redis for session cache and auth events")
	}

	app := fiber.New(fiber.Config{AppName: "raices-vivas"})
	app.Use(recoverer.New())
	app.Use(fiberlogger.New())
	if len(cfg.Server.CORSOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Server.CORSOrigins,
			AllowCredentials: true,
		}))
	}

	opts := []fiberadapter.Option{fiberadapter.WithVersion(Version)}
	if m != nil {
		opts = append(opts, fiberadapter.WithGatherer(registry), fiberadapter.WithRouteMetrics(m))
	}
	adapter := fiberadapter.New(app, opts...)
	rc.HTTP = adapter

	backend, err := raices.New(rc)
	if err != nil {
		return err
	}

	go sweepSessions(ctx, backend, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Server.Address, "version", Version)
		errCh <- app.Listen(cfg.Server.Address, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	adapter.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (core.StorageAdapter, func(), error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		db, err := pgx.Connect(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres storage")
		return db, db.Close, nil
	default:
		logger.Warn("using in-memory storage, data is lost on restart")
		return memstore.New(), func() {}, nil
	}
}

func sweepSessions(ctx context.Context, backend *raices.Raices, logger *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := backend.Sessions.Sweep(ctx)
			if err != nil {
				logger.Error("expired session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired sessions removed", "count", n)
			}
		}
	}
}
