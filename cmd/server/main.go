// cmd/server/main.go
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

	"github.com/redis/go-redis/v9"

	"evidence-job-service/internal/config"
	"evidence-job-service/internal/custody"
	"evidence-job-service/internal/module"
	"evidence-job-service/internal/module/builtin"
	"evidence-job-service/internal/repository/memory"
	"evidence-job-service/internal/repository/postgresql"
	"evidence-job-service/internal/service"
	httptransport "evidence-job-service/internal/transport/http"
	"evidence-job-service/internal/worker"
)

// @title Evidence Job Service API
// @version 1.0
// @description Job dispatch and lifecycle for forensic evidence analysis modules.
// @BasePath /
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

	var (
		jobs     service.JobStore
		cases    service.CaseStore
		execJobs worker.JobStore
		evidence worker.EvidenceStore
	)
	if cfg.DatabaseDSN != "" {
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
		jobRepo := postgresql.NewJobRepository(pool)
		caseRepo := postgresql.NewCaseRepository(pool)
		jobs, cases, execJobs, evidence = jobRepo, caseRepo, jobRepo, caseRepo
	} else {
		// Offline workstation mode: everything in process memory.
		logger.Warn("DATABASE_DSN empty, using in-memory store")
		store := memory.NewStore()
		jobs, cases, execJobs, evidence = store, store, store, store
	}

	registry := module.NewRegistry()
	for _, desc := range builtin.All() {
		registry.MustRegister(desc)
	}

	executor, err := worker.NewExecutor(worker.ExecutorOptions{
		Jobs:     execJobs,
		Evidence: evidence,
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
	inline := worker.NewInlineRunner(executor, cfg.InlineWorkers, logger)

	mode := service.ParseExecutionMode(cfg.JobExecution)
	var queue service.Publisher
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			// Not fatal: auto mode degrades to inline per submission.
			logger.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "error", err)
		}
		queue = service.NewRedisQueue(rdb, cfg.QueueKey, cfg.ProcessingKey)
	} else {
		logger.Warn("REDIS_ADDR empty, forcing inline execution")
		mode = service.ModeInline
	}

	dispatcher, err := service.NewDispatcher(service.DispatcherOptions{
		Jobs:    jobs,
		Cases:   cases,
		Modules: registry,
		Queue:   queue,
		Inline:  inline,
		Mode:    mode,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("dispatcher", "error", err)
		os.Exit(1)
	}

	handler := httptransport.NewHandler(dispatcher)
	srv := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: httptransport.NewRouter(handler, logger),
	}

	go func() {
		logger.Info("http server started", "addr", cfg.BindAddr, "execution_mode", mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}

	// Let inline jobs already in flight reach a terminal state.
	inline.Wait()
	logger.Info("bye")
}
