package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oversitehq/oversite/internal"
	"github.com/oversitehq/oversite/internal/address"
	"github.com/oversitehq/oversite/internal/ai"
	"github.com/oversitehq/oversite/internal/ai/anthropic"
	"github.com/oversitehq/oversite/internal/ai/mock"
	"github.com/oversitehq/oversite/internal/email"
	"github.com/oversitehq/oversite/internal/handler"
	"github.com/oversitehq/oversite/internal/jobs"
	"github.com/oversitehq/oversite/internal/metrics"
	"github.com/oversitehq/oversite/internal/middleware"
	"github.com/oversitehq/oversite/internal/report"
	"github.com/oversitehq/oversite/internal/service"
	"github.com/oversitehq/oversite/internal/storage"
	"github.com/oversitehq/oversite/internal/store"
	"github.com/oversitehq/oversite/internal/worker"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize the job store
	jobStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer jobStore.Close()
	logger.Info("Job store ready", "provider", cfg.StoreProvider)

	// Initialize artifact storage
	artifacts, err := openStorage(cfg, logger)
	if err != nil {
		return err
	}

	// Initialize the narrative provider
	narrative, err := openNarrativeProvider(cfg, logger)
	if err != nil {
		return err
	}

	// Initialize the address validator
	validator, err := openAddressValidator(cfg, logger)
	if err != nil {
		return err
	}

	// Initialize the audit data source
	source, err := openAuditSource(cfg, logger)
	if err != nil {
		return err
	}

	// Initialize the notifier
	var notifier email.Notifier
	if cfg.SMTPEnabled {
		notifier = email.NewSMTPNotifier(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}, cfg.BaseURL, logger)
	} else {
		notifier = email.NewNoopNotifier(logger)
	}

	// Initialize services
	submissions := service.NewSubmissionService(jobStore, logger)
	status := service.NewStatusService(jobStore, artifacts, logger)

	// Initialize the worker pool
	var pool *worker.Pool
	if cfg.WorkerEnabled {
		workerCfg := worker.DefaultConfig()
		workerCfg.Concurrency = cfg.WorkerConcurrency
		workerCfg.PollInterval = cfg.WorkerPollInterval
		workerCfg.JobTimeout = cfg.WorkerJobTimeout

		pool, err = worker.New(jobStore, workerCfg, logger)
		if err != nil {
			return fmt.Errorf("worker pool initialization failed: %w", err)
		}
		pool.Register(jobs.NewAuditReportHandler(source, validator, narrative, artifacts, notifier, logger))
		pool.Register(jobs.NewLocationOverviewHandler(source, narrative, artifacts, logger))
		pool.Start(ctx)
	} else {
		logger.Info("Worker pool disabled; this instance only serves the API")
	}

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", handler.Health)

	// Metrics (basic auth when configured)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Report job API, rate limited per client IP on submission
	submitLimiter := middleware.NewRateLimiter(cfg.SubmitRateLimit, cfg.SubmitRateWindow, logger)
	submitLimit := middleware.NewRateLimitMiddleware(submitLimiter, logger)

	jobHandler := handler.NewJobHandler(submissions, status, logger)
	apiMux := http.NewServeMux()
	jobHandler.Register(apiMux)
	mux.Handle("POST /api/reports", submitLimit.Limit(apiMux))
	mux.Handle("GET /api/reports/", apiMux)

	// Outer middleware: request logging and HTTP metrics
	logging := middleware.NewRequestLoggingMiddleware(logger)
	root := logging.Handler(metrics.Middleware(mux))

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Stop taking requests first, then drain the pool
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	if pool != nil {
		pool.Stop()
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// openStore initializes the configured job store backend.
func openStore(ctx context.Context, cfg *internal.Config) (store.Store, error) {
	switch cfg.StoreProvider {
	case "postgres":
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("database ping failed: %w", err)
		}
		if err := internal.RunMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		return store.NewPostgres(db), nil
	default:
		st, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite store initialization failed: %w", err)
		}
		return st, nil
	}
}

// openStorage initializes the configured artifact storage backend.
func openStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.StorageProvider == "r2" {
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
		}, logger)
	}
	return storage.NewLocalStorage(storage.LocalConfig{BasePath: cfg.LocalStoragePath}, logger)
}

// openNarrativeProvider initializes the configured narrative generator.
func openNarrativeProvider(cfg *internal.Config, logger *slog.Logger) (ai.NarrativeGenerator, error) {
	if cfg.AIProvider == "anthropic" {
		return anthropic.New(anthropic.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
			ProviderConfig: ai.ProviderConfig{
				MaxRetries:     cfg.AIMaxRetries,
				RetryBaseDelay: cfg.AIRetryBaseDelay,
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
	}
	return mock.New(), nil
}

// openAddressValidator initializes the configured address validator.
func openAddressValidator(cfg *internal.Config, logger *slog.Logger) (address.Validator, error) {
	if cfg.AddressValidator == "http" {
		return address.NewHTTPValidator(address.HTTPConfig{
			BaseURL:        cfg.AddressValidatorURL,
			APIKey:         cfg.AddressValidatorKey,
			RequestTimeout: cfg.AddressRequestTimeout,
		}, logger)
	}
	return address.NewPassthrough(), nil
}

// openAuditSource initializes the audit data source. Without an upstream
// URL a static development source is used.
func openAuditSource(cfg *internal.Config, logger *slog.Logger) (jobs.AuditSource, error) {
	if cfg.AuditSourceURL != "" {
		return jobs.NewHTTPSource(jobs.HTTPSourceConfig{
			BaseURL: cfg.AuditSourceURL,
			APIKey:  cfg.AuditSourceKey,
		}, logger)
	}
	return &jobs.StaticSource{
		Findings: []report.Finding{
			{Category: "general", Description: "No upstream audit source configured; development data", RecordedAt: time.Now()},
		},
	}, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
