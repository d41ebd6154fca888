// Package main is the entrypoint for the IssueHound API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kiranshivaraju/issuehound/internal/ai"
	"github.com/kiranshivaraju/issuehound/internal/api"
	"github.com/kiranshivaraju/issuehound/internal/api/handler"
	mw "github.com/kiranshivaraju/issuehound/internal/api/middleware"
	"github.com/kiranshivaraju/issuehound/internal/api/response"
	"github.com/kiranshivaraju/issuehound/internal/archive"
	"github.com/kiranshivaraju/issuehound/internal/cache"
	"github.com/kiranshivaraju/issuehound/internal/config"
	"github.com/kiranshivaraju/issuehound/internal/ingest"
	"github.com/kiranshivaraju/issuehound/internal/redact"
	"github.com/kiranshivaraju/issuehound/internal/store"
	"github.com/kiranshivaraju/issuehound/internal/triage"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Load redaction profiles
	profiles := redact.NewRegistry()
	if cfg.Redact.ProfilesFile != "" {
		if err := profiles.LoadFile(cfg.Redact.ProfilesFile); err != nil {
			return fmt.Errorf("load redaction profiles: %w", err)
		}
		slog.Info("custom redaction profiles loaded", "file", cfg.Redact.ProfilesFile)
	}
	if _, ok := profiles.Resolve(cfg.Redact.DefaultProfile); !ok {
		return fmt.Errorf("unknown default redaction profile %q", cfg.Redact.DefaultProfile)
	}

	// 6. Create AI provider
	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name())

	// 7. Create store and services
	pgStore := store.NewPostgresStore(pool)

	triageSvc := triage.NewService(pgStore, redisCache, aiProvider, cfg.Triage, cfg.AI.InferenceTimeout)

	var (
		archiver *archive.Archiver
		blobs    ingest.BlobStore
		wg       sync.WaitGroup
	)
	if cfg.Archive.Enabled {
		uploader, err := archive.NewUploader(ctx, cfg.Archive)
		if err != nil {
			return fmt.Errorf("create archive uploader: %w", err)
		}
		archiver = archive.NewArchiver(uploader, cfg.Archive)
		blobs = uploader

		wg.Add(1)
		go func() {
			defer wg.Done()
			archiver.Run(ctx)
		}()
		slog.Info("event archiver started", "bucket", cfg.Archive.Bucket)
	}

	var archiverDep ingest.Archiver
	if archiver != nil {
		archiverDep = archiver
	}
	ingestSvc := ingest.NewService(pgStore, redisCache, profiles, cfg.Redact.DefaultProfile,
		archiverDep, blobs, triageSvc)

	// 8. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 600)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),

		IngestHandler:      handler.NewIngestHandler(ingestSvc),
		BatchIngestHandler: handler.NewBatchIngestHandler(ingestSvc),
		AttachmentsHandler: handler.NewAttachmentsHandler(ingestSvc),

		ListIssuesHandler:  handler.NewListIssuesHandler(pgStore),
		GetIssueHandler:    handler.NewGetIssueHandler(pgStore),
		UpdateIssueHandler: handler.NewUpdateIssueHandler(pgStore),
		MergeIssuesHandler: handler.NewMergeIssuesHandler(ingestSvc),

		AnalyzeHandler: handler.NewAnalyzeHandler(pgStore, triageSvc),
		PollJobHandler: handler.NewPollJobHandler(pgStore, redisCache),

		BriefHandler: handler.NewBriefHandler(pgStore),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Let the archiver flush its final batch
	wg.Wait()

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
