package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"imgcache/internal/app"
	"imgcache/internal/config"
	httphandlers "imgcache/internal/http"
	"imgcache/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting imgcache server",
		zap.Int("port", cfg.Port),
		zap.String("cache", cfg.CacheType),
		zap.String("cache_dir", cfg.CacheDir),
		zap.String("codec", cfg.Codec),
	)

	a, err := app.Build(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize image provider", zap.Error(err))
	}
	defer a.Close()

	handlers := httphandlers.New(cfg, log, a.Provider, a.Tiers, a.Codec)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if len(cfg.WarmupURLs) > 0 {
		go a.Provider.Warmup(ctx, cfg.WarmupURLs, cfg.WarmupWorkers)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handlers.Routes(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}
