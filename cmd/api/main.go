package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maklermate/maklermate-api/internal/auth"
	"github.com/maklermate/maklermate-api/internal/config"
	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/http/handler"
	"github.com/maklermate/maklermate-api/internal/http/middleware"
	"github.com/maklermate/maklermate-api/internal/http/router"
	"github.com/maklermate/maklermate-api/internal/jobs"
	"github.com/maklermate/maklermate-api/internal/logger"
	"github.com/maklermate/maklermate-api/internal/repository"
	"github.com/maklermate/maklermate-api/internal/retry"
	"github.com/maklermate/maklermate-api/internal/service"
	"github.com/maklermate/maklermate-api/internal/storage"
	"github.com/maklermate/maklermate-api/internal/store"
	"github.com/maklermate/maklermate-api/internal/textgen"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logging, &cfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Environment),
		zap.Int("port", cfg.App.Port),
		zap.String("backend", cfg.Storage.Backend),
	)

	backend, err := store.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open storage backend: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn("Error closing storage backend", zap.Error(err))
		}
	}()

	// Initialize repositories
	repoOpts := repository.Options{
		Debounce: cfg.Persistence.Debounce(),
		Logger:   log,
		OnError: func(key string, err error) {
			log.Error("Failed to persist collection", zap.String("key", key), zap.Error(err))
		},
	}
	leadRepo := repository.NewLeadRepository(backend, cfg.Storage.LeadsKey, repoOpts)
	exposeRepo := repository.NewExposeRepository(backend, cfg.Storage.ExposesKey, repoOpts)
	draftStore := repository.NewDraftStore(backend, cfg.Storage.DraftKey, repoOpts)

	// Another instance writing the shared collection shows up here
	unsubscribe, err := leadRepo.Subscribe(ctx, func(leads []domain.Lead) {
		log.Debug("Leads changed by another instance", zap.Int("count", len(leads)))
	})
	if err != nil {
		log.Warn("Change notifications unavailable", zap.Error(err))
		unsubscribe = func() {}
	}

	// Text generation is optional; without an API key Generate answers 503
	var generator textgen.Generator
	client, err := textgen.NewClient(&cfg.TextGen, retry.FromConfig(&cfg.Retry, log), log)
	switch {
	case errors.Is(err, textgen.ErrNotConfigured):
		log.Info("Text generation not configured, skipping")
	case err != nil:
		return fmt.Errorf("failed to create text generation client: %w", err)
	default:
		generator = client
		log.Info("Text generation enabled", zap.String("model", cfg.TextGen.Model))
	}

	// Initialize services
	leadService := service.NewLeadService(leadRepo, log)
	exposeService := service.NewExposeService(exposeRepo, generator, log)
	draftService := service.NewDraftService(draftStore, log)

	// Initialize middleware
	authMiddleware := auth.NewMiddleware(&cfg.Auth, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(backend, cfg.Storage.Backend, generator != nil, log)
	leadHandler := handler.NewLeadHandler(leadService, log)
	exposeHandler := handler.NewExposeHandler(exposeService, log)
	draftHandler := handler.NewDraftHandler(draftService, log)

	rt := router.NewRouter(
		cfg,
		log,
		authMiddleware,
		rateLimiter,
		healthHandler,
		leadHandler,
		exposeHandler,
		draftHandler,
	)

	// Initialize and start scheduler for background jobs
	var scheduler *jobs.Scheduler
	if cfg.Backup.Enabled {
		sink, err := storage.NewStorage(ctx, &cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to initialize backup storage: %w", err)
		}

		scheduler = jobs.NewScheduler(log)
		job := jobs.NewBackupJob(backend, sink,
			[]string{cfg.Storage.LeadsKey, cfg.Storage.ExposesKey, cfg.Storage.DraftKey},
			cfg.Backup.Retain, log)
		if err := jobs.RegisterBackupJob(scheduler, job, cfg.Backup.Cron); err != nil {
			return fmt.Errorf("failed to register backup job: %w", err)
		}
		scheduler.Start()
		log.Info("Scheduler started with backup job",
			zap.String("cron_expr", cfg.Backup.Cron),
			zap.String("mode", cfg.Backup.Mode),
			zap.Int("retain", cfg.Backup.Retain),
		)
	} else {
		log.Info("Backups disabled")
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      rt.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		if scheduler != nil {
			<-scheduler.Stop().Done()
			log.Info("Scheduler stopped")
		}

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}

		// Flush pending debounced writes before the backend goes away
		unsubscribe()
		for name, c := range map[string]interface{ Close() error }{
			"leads":   leadRepo,
			"exposes": exposeRepo,
			"draft":   draftStore,
		} {
			if err := c.Close(); err != nil {
				log.Warn("Error flushing collection", zap.String("collection", name), zap.Error(err))
			}
		}

		log.Info("Server stopped gracefully")
	}

	return nil
}
