// Personalized chat server: wires the browser UI to the Pioneer
// personalization API and a hosted completion service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avreyes/pioneerchat/internal/api"
	"github.com/avreyes/pioneerchat/internal/completion"
	"github.com/avreyes/pioneerchat/internal/config"
	"github.com/avreyes/pioneerchat/internal/middleware"
	"github.com/avreyes/pioneerchat/internal/orchestrator"
	"github.com/avreyes/pioneerchat/internal/pioneer"
	"github.com/avreyes/pioneerchat/internal/session"
	"github.com/avreyes/pioneerchat/internal/store"
	"github.com/avreyes/pioneerchat/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "model", cfg.Completion.Model)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	pioneerClient := pioneer.NewClient(pioneer.Config{
		BaseURL:          cfg.Pioneer.BaseURL,
		APIKey:           cfg.Pioneer.APIKey,
		RegisterTimeout:  cfg.Pioneer.RegisterTimeout,
		RetrievalTimeout: cfg.Pioneer.RetrievalTimeout,
		IngestTimeout:    cfg.Pioneer.IngestTimeout,
		QueryTimeout:     cfg.Pioneer.QueryTimeout,
	}, logger)

	completer := completion.NewClient(completion.Config{
		APIKey:      cfg.Completion.APIKey,
		Model:       cfg.Completion.Model,
		Temperature: cfg.Completion.Temperature,
		MaxTokens:   cfg.Completion.MaxTokens,
	})

	// Initialize services.
	ingestQueue := orchestrator.NewIngestQueue(cfg.IngestQueueSize, pioneerClient, logger)
	defer ingestQueue.Close()

	orch := orchestrator.New(pioneerClient, completer, ingestQueue, orchestrator.Config{
		ChunkCount:          cfg.ChunkCount,
		SimilarityThreshold: cfg.SimilarityThreshold,
		SummaryMaxChars:     cfg.SummaryMaxChars,
	}, logger)

	sessions := session.NewStore(repo, pioneerClient, cfg.SessionMaxAge, logger)

	// Initialize handlers.
	handler := api.NewHandler(sessions, orch)
	healthHandler := api.NewHealthHandler(repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterHealth(r)
	handler.RegisterRoutes(r)

	// Serve the embedded frontend for everything else.
	r.Handle("/*", web.Handler())

	// Completion calls can take tens of seconds, so writes get a generous
	// timeout rather than none at all.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 4 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions.StartCleanupWorker(ctx, cfg.CleanupInterval)
	slog.Info("Session cleanup worker started", "interval", cfg.CleanupInterval, "session_max_age", cfg.SessionMaxAge)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
