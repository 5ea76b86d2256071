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

	"github.com/rwfshr/markup/internal/api"
	"github.com/rwfshr/markup/internal/cache"
	"github.com/rwfshr/markup/internal/client"
	"github.com/rwfshr/markup/internal/config"
	"github.com/rwfshr/markup/internal/db"
	"github.com/rwfshr/markup/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	slog.Info("starting markup gateway",
		"addr", cfg.Addr,
		"upstream", cfg.UpstreamURL,
		"commit", utils.SafeEnv("MARKUP_COMMIT", ""),
		"strict_answers", cfg.StrictAnswers,
	)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	conn, err := db.Open(cfg.SQLitePath)
	if err != nil {
		slog.Error("failed to open sqlite", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	slog.Info("running database migrations", "dir", cfg.MigrationsDir)
	if err := db.RunMigrations(initCtx, conn, cfg.MigrationsDir); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	drafts, err := db.NewSQLiteStore(conn)
	if err != nil {
		slog.Error("failed to create draft store", "error", err)
		os.Exit(1)
	}

	var lookups cache.Cache
	if cfg.RedisAddr != "" {
		rdb, err := cache.DialRedis(initCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		lookups = cache.NewRedis(rdb, cfg.CacheTTL)
		slog.Info("caching lookups in redis", "addr", cfg.RedisAddr)
	} else {
		lookups = cache.NewMemory(cfg.CacheTTL)
	}

	server := api.NewServer(api.Options{
		Upstream:      client.New(cfg.UpstreamURL, client.WithTimeout(cfg.UpstreamTimeout)),
		Drafts:        drafts,
		Cache:         lookups,
		JWTSecret:     []byte(cfg.JWTSecret),
		StrictAnswers: cfg.StrictAnswers,
		CORSOrigins:   cfg.CORSOrigins,
		Timeout:       cfg.UpstreamTimeout + 5*time.Second,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("markup gateway stopped")
}
