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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Procura/internal/analysis"
	"github.com/shaiso/Procura/internal/api"
	"github.com/shaiso/Procura/internal/cache"
	"github.com/shaiso/Procura/internal/classify"
	"github.com/shaiso/Procura/internal/config"
	"github.com/shaiso/Procura/internal/diagnostics"
	"github.com/shaiso/Procura/internal/enrich"
	"github.com/shaiso/Procura/internal/events"
	"github.com/shaiso/Procura/internal/governor"
	"github.com/shaiso/Procura/internal/llm"
	"github.com/shaiso/Procura/internal/mq"
	"github.com/shaiso/Procura/internal/orchestrator"
	"github.com/shaiso/Procura/internal/repo"
	"github.com/shaiso/Procura/internal/rubric"
	"github.com/shaiso/Procura/internal/scheduler"
	"github.com/shaiso/Procura/internal/taxonomy"
	"github.com/shaiso/Procura/internal/telemetry"
)

var startTime = time.Now()

func main() {
	if err := run(); err != nil {
		slog.Error("procura-api failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logger := telemetry.SetupLogger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.LLM.RequireKeys(); err != nil {
		return err
	}

	logger = telemetry.NewLogger(os.Stdout, telemetry.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	slog.SetDefault(logger)
	logger.Info("starting procura-api", "store", cfg.Store.Driver, "provider", cfg.LLM.Provider)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// Чекпоинты и справочник кодов
	var (
		store    orchestrator.CheckpointStore
		purge    scheduler.Checkpoints
		searcher taxonomy.Searcher
	)
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := repo.NewPool(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		logger.Info("connected to database")

		if err := repo.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		taxRepo, err := seedTaxonomy(ctx, pool, cfg.Pipeline.TaxonomyPath, logger)
		if err != nil {
			return err
		}
		store = repo.NewCheckpointRepo(pool)
		searcher = taxRepo
	default:
		index, err := loadTaxonomy(cfg.Pipeline.TaxonomyPath)
		if err != nil {
			return err
		}
		checkpoints := repo.NewMemoryCheckpoints()
		store = checkpoints
		purge = checkpoints
		searcher = index
		logger.Warn("using in-memory checkpoints, sessions are lost on restart")
	}

	// Кэш классификаций
	var cacheStore cache.Store
	var sweeper scheduler.Sweeper
	if cfg.Cache.RedisAddr != "" {
		rs, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:       cfg.Cache.RedisAddr,
			Password:   cfg.Cache.RedisPassword,
			DB:         cfg.Cache.RedisDB,
			DefaultTTL: cfg.Cache.TTL,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rs.Close()
		cacheStore = rs
		logger.Info("connected to redis", "addr", cfg.Cache.RedisAddr)
	} else {
		ms := cache.NewMemoryStore(cache.WithDefaultTTL(cfg.Cache.TTL))
		cacheStore = ms
		sweeper = ms
	}
	classCache := cache.NewClassificationCache(cache.ClassificationConfig{
		Store:               cacheStore,
		TTL:                 cfg.Cache.TTL,
		VendorDiscount:      cfg.Cache.VendorDiscount,
		VendorMinConfidence: cfg.Cache.VendorMinConfidence,
		Metrics:             metrics,
		Logger:              logger,
	})

	// Регулятор нагрузки и повторы
	gov := governor.New(governor.Config{
		RequestsPerSecond: cfg.Governor.RequestsPerSecond,
		Burst:             cfg.Governor.Burst,
		MaxInFlight:       cfg.Governor.MaxInFlight,
		BatchSize:         cfg.Governor.BatchSize,
		MinBatchSize:      cfg.Governor.MinBatchSize,
		MaxConcurrency:    cfg.Governor.MaxConcurrency,
		InterBatchDelay:   cfg.Governor.InterBatchDelay,
		Logger:            logger,
	})
	retrier := diagnostics.NewRetrier(diagnostics.RetrierConfig{
		MaxDelay:   cfg.Governor.MaxRetryDelay,
		OnFallback: orchestrator.ReduceBatchOnTokenLimit(gov, logger),
		Metrics:    metrics,
		Logger:     logger,
	})

	gen, err := newGenerator(cfg.LLM, logger)
	if err != nil {
		return err
	}

	// События: лог и, если включено, RabbitMQ
	sinks := []events.Notifier{events.LogSink{Logger: logger}}
	var (
		conn      *mq.Connection
		publisher *mq.Publisher
	)
	if cfg.RabbitMQ.Enabled {
		conn, err = mq.NewConnection(cfg.RabbitMQ.URL, logger)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer conn.Close()
		publisher = mq.NewPublisher(conn, logger)
		sinks = append(sinks, mq.NewEventPublisher(publisher, cfg.RabbitMQ.PublishTimeout, logger))
	}
	dispatcher := events.NewDispatcher(events.DispatcherConfig{Sinks: sinks, Logger: logger})
	defer dispatcher.Close()

	orch := orchestrator.New(orchestrator.Config{
		Store: store,
		Classifier: classify.New(classify.Config{
			Generator: llm.NewGoverned(gen, gov, "classify", metrics),
			Searcher:  searcher,
			Cache:     classCache,
			Retrier:   retrier,
			Logger:    logger,
		}),
		Evaluator: rubric.NewEvaluator(rubric.Config{
			Generator: llm.NewGoverned(gen, gov, "qa", metrics),
			Retrier:   retrier,
			Logger:    logger,
		}),
		Enricher:    enrich.New(searcher, logger),
		Analyzer:    analysis.New(llm.NewGoverned(gen, gov, "analyze", metrics), retrier, logger),
		Governor:    gov,
		Retrier:     retrier,
		Notifier:    dispatcher,
		Metrics:     metrics,
		AutoEnrich:  cfg.Pipeline.AutoEnrich,
		StopOnError: cfg.Pipeline.StopOnError,
		MaxSteps:    cfg.Pipeline.MaxSteps,
		CancelGrace: cfg.Pipeline.CancelGrace,
		Logger:      logger,

		DecisionCache: classCache,
	})

	// Решения из очереди hitl.decisions применяет этот же процесс
	if conn != nil {
		consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueHITLDecisions),
			Handler:  mq.DecisionHandler(orch.ApplyDecision),
			Prefetch: cfg.RabbitMQ.Prefetch,
		})
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("decision consumer stopped", "error", err)
			}
		}()
		defer consumer.Stop()
	}

	// Обслуживание in-process хранилищ
	if purge != nil || sweeper != nil {
		sched, err := scheduler.New(scheduler.Config{
			Checkpoints: purge,
			Sweeper:     sweeper,
			Retention:   cfg.Scheduler.Retention,
			SweepSpec:   cfg.Scheduler.SweepSpec,
			PurgeSpec:   cfg.Scheduler.PurgeSpec,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	handlerCfg := api.Config{Sessions: orch, Logger: logger}
	if publisher != nil {
		handlerCfg.Publisher = publisher
	}
	handler := api.NewHandler(handlerCfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if conn != nil && !conn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "rabbitmq disconnected")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s active=%d", time.Since(startTime).Round(time.Second), orch.ActiveSessions())
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
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

	logger.Info("stopped", "events_dropped", dispatcher.Dropped())
	return nil
}
