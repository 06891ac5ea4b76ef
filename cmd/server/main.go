// Parley - conversational avatar chat server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/parleylabs/parley/internal/api"
	"github.com/parleylabs/parley/internal/avatar"
	"github.com/parleylabs/parley/internal/chat"
	"github.com/parleylabs/parley/internal/config"
	"github.com/parleylabs/parley/internal/httpx"
	"github.com/parleylabs/parley/internal/identity"
	"github.com/parleylabs/parley/internal/maintenance"
	"github.com/parleylabs/parley/internal/middleware"
	"github.com/parleylabs/parley/internal/speech"
	"github.com/parleylabs/parley/internal/store"
	"github.com/parleylabs/parley/web"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, backend, err := openStore(cfg)
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
	slog.Info("Database connected", "backend", backend)

	// One retrying client shared by every upstream call.
	rest := httpx.New(httpx.WithPolicy(httpx.RetryPolicy{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
	}))

	provider, err := chat.New(cfg.Chat, rest)
	if err != nil {
		slog.Error("Failed to initialize chat provider", "error", err)
		os.Exit(1)
	}
	slog.Info("Chat provider ready", "provider", provider.Name(), "model", cfg.Chat.Model)

	tts := speech.New(rest, cfg.Speech)
	talks := avatar.New(rest, cfg.Avatar)

	limiter := api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Close()

	// Initialize handlers.
	handler := api.NewHandler(repo, provider, tts, talks, limiter, cfg.Chat.SystemPrompt)
	wsHandler := api.NewAvatarSocketHandler(talks, limiter, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	// Public routes.
	r.Get("/health", handler.HandleHealth)

	// Everything else requires a user identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo))
		handler.RegisterRoutes(r)
		r.Get("/ws/avatar", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Note: avatar generation can hold a response open for minutes, so the
	// write timeout stays off and the poll bounds do the limiting.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	maintenance.StartRetentionWorker(ctx, repo, cfg.Retention.Interval, cfg.Retention.MaxIdle)

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

// openStore selects the Postgres store when DATABASE_URL is set and falls
// back to the embedded SQLite store otherwise.
func openStore(cfg *config.Config) (store.Repository, string, error) {
	if cfg.DatabaseURL != "" {
		repo, err := store.NewPostgres(context.Background(), cfg.DatabaseURL)
		return repo, "postgres", err
	}
	repo, err := store.NewSQLite(cfg.DBPath)
	return repo, "sqlite", err
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
