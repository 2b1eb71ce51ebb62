// cmd/worker/main.go
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"evidence-job-service/internal/config"
	"evidence-job-service/internal/custody"
	"evidence-job-service/internal/module"
	"evidence-job-service/internal/module/builtin"
	"evidence-job-service/internal/repository/postgresql"
	"evidence-job-service/internal/service"
	"evidence-job-service/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	// The queue consumer is only meaningful with shared infrastructure.
	if cfg.DatabaseDSN == "" || cfg.RedisAddr == "" {
		logger.Error("DATABASE_DSN and REDIS_ADDR are required for the worker")
		os.Exit(1)
	}

	pool, err := postgresql.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Error("postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgresql.Bootstrap(ctx, pool); err != nil {
		logger.Error("schema bootstrap", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis", "error", err)
		os.Exit(1)
	}

	registry := module.NewRegistry()
	for _, desc := range builtin.All() {
		registry.MustRegister(desc)
	}

	jobRepo := postgresql.NewJobRepository(pool)
	caseRepo := postgresql.NewCaseRepository(pool)

	executor, err := worker.NewExecutor(worker.ExecutorOptions{
		Jobs:     jobRepo,
		Evidence: caseRepo,
		Modules:  registry,
		Custody:  custody.NewLog(cfg.VaultDir),
		VaultDir: cfg.VaultDir,
		Timeout:  cfg.JobTimeout,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("executor", "error", err)
		os.Exit(1)
	}

	queue := service.NewRedisQueue(rdb, cfg.QueueKey, cfg.ProcessingKey)

	// Reaper: claimed but unacked job ids go back to the queue after a worker
	// crash or restart.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := queue.RequeueStale(ctx, 100)
				if err != nil {
					logger.Warn("requeue stale", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("requeued stale jobs", "count", n)
				}
			}
		}
	}()

	worker.NewPool(queue, executor, cfg.Workers, logger).Run(ctx)
}
