// Command consistency starts the chunk consistency service.
//
// The service consumes chunk store and delete requests from Kafka, runs
// them as sagas across the relational (PostgreSQL) and vector (Redis)
// chunk stores, and exposes an admin HTTP API for per-document audits,
// repairs, and bulk sweeps. Health probes live at /health/live and
// /health/ready, Prometheus metrics on a separate port.
//
// Usage:
//
//	go run ./cmd/consistency [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ragplatform/chunksync/internal/chunks/auditor"
	"github.com/ragplatform/chunksync/internal/chunks/embedding"
	"github.com/ragplatform/chunksync/internal/chunks/journal"
	"github.com/ragplatform/chunksync/internal/chunks/lock"
	"github.com/ragplatform/chunksync/internal/chunks/manager"
	"github.com/ragplatform/chunksync/internal/consistency/consumer"
	"github.com/ragplatform/chunksync/internal/consistency/handler"
	"github.com/ragplatform/chunksync/internal/store/relational"
	"github.com/ragplatform/chunksync/internal/store/vector"
	"github.com/ragplatform/chunksync/pkg/config"
	"github.com/ragplatform/chunksync/pkg/health"
	"github.com/ragplatform/chunksync/pkg/kafka"
	"github.com/ragplatform/chunksync/pkg/logger"
	"github.com/ragplatform/chunksync/pkg/metrics"
	"github.com/ragplatform/chunksync/pkg/middleware"
	"github.com/ragplatform/chunksync/pkg/postgres"
	"github.com/ragplatform/chunksync/pkg/redis"
	"github.com/ragplatform/chunksync/pkg/snowflake"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting consistency service", "port", cfg.Server.Port)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	slog.Info("connected to redis")

	ids, err := snowflake.New(cfg.Consistency.DatacenterID, cfg.Consistency.WorkerID)
	if err != nil {
		slog.Error("failed to create id generator", "error", err)
		os.Exit(1)
	}

	embedder, err := embedding.NewOpenAI(cfg.Embedding)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}

	var locks lock.DocumentLocker
	if cfg.Consistency.DistributedLocks {
		locks = lock.NewRedis(rdb, cfg.Consistency.LockTTL)
		slog.Info("using distributed document locks", "ttl", cfg.Consistency.LockTTL)
	} else {
		locks = lock.NewMemory()
	}

	m := metrics.New()
	relStore := relational.New(db)
	vecStore := vector.New(rdb)
	sagaJournal := journal.NewRedis(rdb, cfg.Consistency.JournalRetention)

	mgr := manager.New(manager.Deps{
		Relational: relStore,
		Vector:     vecStore,
		Journal:    sagaJournal,
		Locks:      locks,
		Embedder:   embedder,
		IDs:        ids,
		Metrics:    m,
		Config:     cfg.Consistency,
	})

	reprocessProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Reprocess)
	defer reprocessProducer.Close()

	aud := auditor.New(relStore, vecStore, locks, reprocessProducer, m, cfg.Consistency)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.DB.PingContext))
	checker.Register("redis", health.PingCheck(rdb.Ping))

	h := handler.New(aud)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var adminHandler http.Handler = mux
	adminHandler = middleware.Timeout(cfg.Server.RequestTimeout)(adminHandler)
	adminHandler = middleware.Metrics(m)(adminHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      adminHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	dispatcher := consumer.NewDispatcher(mgr)
	requestConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ChunkStore, dispatcher.Handle)
	go func() {
		slog.Info("consuming chunk-set requests",
			"topic", cfg.Kafka.Topics.ChunkStore,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := requestConsumer.Start(ctx); err != nil {
			slog.Error("consumer error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("consistency service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("consistency service stopped")
}
