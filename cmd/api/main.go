package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/coinvault/coinvault/internal/api"
	"github.com/coinvault/coinvault/internal/config"
	"github.com/coinvault/coinvault/internal/logging"
	"github.com/coinvault/coinvault/internal/service"
	"github.com/coinvault/coinvault/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	pg, err := store.NewPostgres(ctx, cfg.DBSource, cfg.PoolSize)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pg.Close()

	var cache *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("parse redis url", slog.Any("error", err))
			os.Exit(1)
		}
		cache = redis.NewClient(opt)
		if err := cache.Ping(ctx).Err(); err != nil {
			logger.Error("ping redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer cache.Close()
	}

	transfers := service.NewTransferService(pg, logger)
	queries := service.NewQueryService(pg)
	handler := api.NewHandler(transfers, queries, logger)

	r := mux.NewRouter()
	r.Use(api.RequestID())
	r.Use(api.RequestLogger(logger))
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheckHandler).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(api.RateLimit(cache, cfg.RateLimitPerMin))
	handler.Register(apiV1)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	srvErrCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("port", cfg.Port), slog.String("env", cfg.Env))
		srvErrCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-srvErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}
