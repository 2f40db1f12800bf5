package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"lessonsync/config"
	"lessonsync/handlers"
	"lessonsync/server"
	"lessonsync/utils"
)

func main() {
	logger := utils.NewLogger()
	logger.Info("Starting lesson sync server...")

	cfg := config.LoadConfig()
	logger.SetLevel(utils.ParseLevel(cfg.LogLevel))
	logger.Info(fmt.Sprintf("Configuration loaded: Port=%s", cfg.Port))

	directory := server.NewDirectory()
	registry := server.NewRegistry(directory, logger, cfg.MessageBufferSize)

	r := chi.NewRouter()
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		handlers.ServeWS(registry, w, req, cfg, logger)
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info(fmt.Sprintf("Server listening on port %s", cfg.Port))
		logger.Info(fmt.Sprintf("WebSocket endpoint: ws://localhost:%s/ws", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("Server error: %v", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error(fmt.Sprintf("Server forced to shutdown: %v", err))
	}
	registry.Close()

	logger.Info("Server stopped")
}
