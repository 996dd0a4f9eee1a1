package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Procura/internal/cache"
	"github.com/shaiso/Procura/internal/config"
	"github.com/shaiso/Procura/internal/repo"
	"github.com/shaiso/Procura/internal/scheduler"
	"github.com/shaiso/Procura/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("procura-scheduler failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logger := telemetry.SetupLogger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.StorePostgres {
		return fmt.Errorf("%w: scheduler needs store driver %q", config.ErrInvalidConfig, config.StorePostgres)
	}

	logger = telemetry.NewLogger(os.Stdout, telemetry.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	slog.SetDefault(logger)
	logger.Info("starting procura-scheduler")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	schedCfg := scheduler.Config{
		Checkpoints: repo.NewCheckpointRepo(pool),
		Retention:   cfg.Scheduler.Retention,
		SweepSpec:   cfg.Scheduler.SweepSpec,
		PurgeSpec:   cfg.Scheduler.PurgeSpec,
		Logger:      logger,
	}

	// Лидерство по advisory lock: задачи выполняет одна реплика
	leader := repo.NewLeader(pool, cfg.Scheduler.LockKey)
	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer releaseCancel()
		if err := leader.Release(releaseCtx); err != nil {
			logger.Warn("failed to release leadership", "error", err)
		}
	}()
	schedCfg.Leader = leader

	if cfg.Cache.RedisAddr != "" {
		rs, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rs.Close()
		schedCfg.Sweeper = rs
	}

	sched, err := scheduler.New(schedCfg)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.Scheduler.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Scheduler.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
	return nil
}
