package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mama165/sdk-go/logs"

	"campusmart/config"
	"campusmart/database"
	"campusmart/handlers"
	"campusmart/metrics"
	"campusmart/middleware"
	"campusmart/presence"
	"campusmart/ratelimit"
	"campusmart/realtime"
	"campusmart/services"
	"campusmart/uploads"
)

const (
	sessionCleanupInterval = time.Hour
	uploadURLPrefix        = "/uploads/chat"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	store, err := database.Open(cfg.DatabasePath, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("Closing database")
		_ = store.Close()
	}()

	uploadStore, err := uploads.NewStore(filepath.Join(cfg.UploadDir, "chat"), uploadURLPrefix, int64(cfg.MaxUploadBytes), log)
	if err != nil {
		return err
	}

	hub := realtime.NewHub(log)
	table := presence.NewTable(hub, log)
	limiter := ratelimit.New(cfg.MessageRateLimit, cfg.MessageRateWindow)
	chatService := services.NewChatService(store, hub, limiter, uploadStore, log)

	h := handlers.New(store, chatService, table, hub, log, handlers.Options{
		SessionTTL:     cfg.SessionTTL,
		SendBufferSize: cfg.SendBufferSize,
		MaxUploadBytes: int64(cfg.MaxUploadBytes),
	})

	router := mux.NewRouter()
	router.Use(middleware.Logging(log))
	h.Routes(router)
	router.PathPrefix(uploadURLPrefix + "/").Handler(uploadStore.Handler())
	if cfg.MetricsEnabled {
		router.Handle("/metrics", metrics.Handler())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go limiter.Run(ctx, cfg.MessageRateWindow)
	go cleanupSessions(ctx, store, log)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Server starting", "address", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown incomplete", "error", err)
	}
	hub.Close()
	if err := h.Drain(shutdownCtx); err != nil {
		log.Warn("Connections still open at shutdown", "error", err)
	}
	log.Info("Server stopped cleanly")
	return nil
}

// cleanupSessions drops expired sessions every hour until ctx is done
func cleanupSessions(ctx context.Context, store *database.Store, log *slog.Logger) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.CleanupExpiredSessions(ctx)
			if err != nil {
				log.Warn("Session cleanup failed", "error", err)
				continue
			}
			log.Debug("Expired sessions removed", "count", n)
		}
	}
}
