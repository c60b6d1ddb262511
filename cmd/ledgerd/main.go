// ledgerd is the tamper-evident action ledger server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/actionledger/core/pkg/api"
	"github.com/actionledger/core/pkg/archive"
	"github.com/actionledger/core/pkg/auth"
	"github.com/actionledger/core/pkg/chain"
	"github.com/actionledger/core/pkg/config"
	"github.com/actionledger/core/pkg/ledger"
	"github.com/actionledger/core/pkg/observability"
	"github.com/actionledger/core/pkg/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventStore, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer func() { _ = eventStore.Close() }()

	archiveWriter, err := archive.New(cfg.ArchiveBackend, cfg.ArchivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	appender := ledger.NewAppender(eventStore, archiveWriter, logger,
		ledger.WithTimeouts(cfg.StoreTimeout, cfg.ArchiveTimeout))
	verifier := chain.NewVerifier(eventStore)
	reconciler := ledger.NewReconciler(eventStore, archiveWriter)

	telemetry, err := observability.New(ctx, &observability.Config{
		ServiceName:    "actionledger",
		ServiceVersion: api.Version,
		Environment:    "production",
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SampleRate:     cfg.Telemetry.SampleRate,
		Enabled:        cfg.Telemetry.Enabled,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	srv := api.NewServer(eventStore, appender, verifier, reconciler, archiveWriter, logger)
	rateLimiter := api.NewGlobalRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer rateLimiter.Close()

	handler := api.Chain(srv.Routes(),
		auth.RequestIDMiddleware,
		auth.CORSMiddleware(cfg.CORSAllowOrigins),
		rateLimiter.Middleware,
		auth.APIKeyMiddleware(cfg.APIKey),
		telemetry.Middleware,
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledger server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// openStore selects the primary store from the database URL scheme.
func openStore(ctx context.Context, url string) (store.EventStore, error) {
	switch {
	case strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://"):
		db, err := sql.Open("postgres", url)
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgresStore(db)
		if err := pg.Init(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
		return pg, nil
	case strings.HasPrefix(url, "sqlite://"):
		db, err := sql.Open("sqlite", strings.TrimPrefix(url, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return store.NewSQLiteStore(db)
	default:
		return nil, fmt.Errorf("unsupported database url %q", url)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
