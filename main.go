package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	_ "github.com/joho/godotenv/autoload"

	"github.com/s1natex/tasks-service/internal/config"
	"github.com/s1natex/tasks-service/internal/middleware"
	"github.com/s1natex/tasks-service/internal/tasks"
	"github.com/s1natex/tasks-service/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger) // for third-party packages that use slog

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server_error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		Exporter:    cfg.Tracing.Exporter,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing_shutdown", slog.String("error", err.Error()))
		}
	}()

	repo, closeRepo, err := openRepository(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRepo(); err != nil {
			logger.Warn("store_close", slog.String("error", err.Error()))
		}
	}()

	r := newRouter(tasks.Instrument(repo), logger, routerOptions{
		ClientURL:      cfg.CORS.ClientURL,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Metrics:        cfg.Metrics.Enabled,
		Limiter:        middleware.NewClientLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		Auth: middleware.AuthConfig{
			Mode:        middleware.AuthMode(cfg.Auth.Mode),
			APIKey:      cfg.Auth.APIKey,
			BearerToken: cfg.Auth.BearerToken,
			SkipPaths:   []string{"/health", "/metrics"},
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           r,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listen",
			slog.String("addr", srv.Addr),
			slog.String("env", cfg.Env),
			slog.String("db_driver", cfg.Database.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server_shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type migrator interface {
	ApplyMigrations(ctx context.Context) error
	Close() error
}

// openRepository builds the configured store and makes sure its schema
// exists before any request is served.
func openRepository(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (tasks.Repository, func() error, error) {
	var (
		repo interface {
			tasks.Repository
			migrator
		}
		err error
	)
	switch cfg.Driver {
	case config.DriverMemory:
		return tasks.NewInMemoryRepo(), func() error { return nil }, nil
	case config.DriverSQLite:
		dsn, derr := tasks.SQLiteFileDSN(cfg.SQLitePath)
		if derr != nil {
			return nil, nil, fmt.Errorf("sqlite path: %w", derr)
		}
		repo, err = tasks.NewSQLiteRepo(dsn)
	case config.DriverPostgres:
		repo, err = tasks.NewPostgresRepo(ctx, cfg.DSN(), tasks.PostgresOptions{
			MaxConns:       cfg.MaxConns,
			ConnectTimeout: cfg.ConnectTimeout,
			Logger:         logger,
		})
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	if err := repo.ApplyMigrations(ctx); err != nil {
		_ = repo.Close()
		return nil, nil, fmt.Errorf("bootstrap %s schema: %w", cfg.Driver, err)
	}
	logger.Info("schema_ready", slog.String("driver", cfg.Driver))
	return repo, repo.Close, nil
}

type routerOptions struct {
	ClientURL      string
	RequestTimeout time.Duration
	Metrics        bool
	Limiter        *middleware.ClientLimiter
	Auth           middleware.AuthConfig
}

type apiErr struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// newRouter wires the health endpoint, task routes, and middleware stack
func newRouter(repo tasks.Repository, logger *slog.Logger, opts routerOptions) *chi.Mux {
	r := chi.NewRouter()

	// ---- Middleware stack (order is part of the contract, see main_test.go) ----
	// RequestID first so downstream can include it (logger, errors, etc.)
	r.Use(chimw.RequestID)

	// The logger wraps the recoverer so panics are logged with their final 500.
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.TracingMiddleware)

	// Deadline for handlers and their store calls; the handler writes the error.
	r.Use(middleware.RequestTimeout(opts.RequestTimeout))

	r.Use(middleware.CORS(opts.ClientURL))
	r.Use(middleware.RateLimitMiddleware(opts.Limiter))
	r.Use(middleware.AuthMiddleware(opts.Auth))

	notFound := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(apiErr{Error: "not_found", Message: "Route not found"})
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	// ---- Routes ----

	// health
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := repo.Ping(r.Context()); err != nil {
			logger.Warn("health_check_failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	if opts.Metrics {
		r.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())
	}

	tasks.RegisterRoutes(r, repo, logger)

	return r
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(strings.TrimSpace(cfg.Level)) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: l}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
