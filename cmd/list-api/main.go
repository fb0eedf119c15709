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

	"github.com/listkeeper/project/internal/app/autosave"
	"github.com/listkeeper/project/internal/app/catalog"
	"github.com/listkeeper/project/internal/app/list"
	"github.com/listkeeper/project/internal/app/listapi"
	"github.com/listkeeper/project/internal/platform/auth"
	"github.com/listkeeper/project/internal/platform/dbpool"
	"github.com/listkeeper/project/internal/platform/env"
	"github.com/listkeeper/project/internal/platform/logging"
	"github.com/listkeeper/project/internal/platform/metrics"
)

func main() {
	logging.Setup()

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := env.String("LIST_API_ADDR", env.DefaultListAPIAddr)
	uiOrigin := env.String("UI_ORIGIN", "*")
	pgURL := env.String("DATABASE_URL", env.DefaultDatabaseURL)
	catalogURL := env.String("CATALOG_URL", env.DefaultCatalogURL)
	jwtSecret := env.String("JWT_SECRET", "dev-insecure-change-me")
	shutdownTimeout := env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)

	pool, err := dbpool.New(runCtx, pgURL)
	if err != nil {
		slog.Error("database pool init failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := list.NewPostgresRepository(pool)
	if err := waitForSchema(runCtx, repo, 30*time.Second); err != nil {
		slog.Error("schema readiness failed", "error", err)
		os.Exit(1)
	}

	listSvc := list.NewService(repo, catalog.NewHTTPClient(catalogURL))
	autosaveSvc := autosave.NewService(repo)
	tokenManager := auth.NewManager(jwtSecret, 15*time.Minute)
	handler := listapi.NewHandler(listSvc, autosaveSvc, tokenManager, uiOrigin)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 1500*time.Millisecond)
		defer cancel()
		if err := pool.Ping(checkCtx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("list API listening", "addr", addr)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		slog.Error("server failed", "error", err)
		os.Exit(1)
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("graceful shutdown failed", "error", err)
	}
}

func waitForSchema(ctx context.Context, repo *list.PostgresRepository, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = repo.EnsureSchema(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		slog.Info("waiting for schema readiness", "error", lastErr)
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}
