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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codedrill/codedrill/internal/config"
	"github.com/codedrill/codedrill/internal/executor"
	"github.com/codedrill/codedrill/internal/judge"
	"github.com/codedrill/codedrill/internal/queue"
	"github.com/codedrill/codedrill/internal/repository"
	"github.com/codedrill/codedrill/internal/stats"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	conn, err := queue.NewConnection(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer conn.Close()

	languages, err := executor.LoadLanguageConfigs(cfg.LanguagesPath)
	if err != nil {
		return fmt.Errorf("load language configs: %w", err)
	}

	docker, err := executor.NewDockerExecutor(executor.DockerConfig{Languages: languages})
	if err != nil {
		return fmt.Errorf("create executor: %w", err)
	}
	defer docker.Close()

	exec := executor.NewResilientExecutor(docker, executor.ResilientConfig{
		MaxConcurrent: cfg.SandboxConcurrency,
		Logger:        logger,
	})

	users := repository.NewUserRepository(pool)
	problems := repository.NewProblemRepository(pool)
	submissions := repository.NewSubmissionRepository(pool)
	tasks := repository.NewTaskRepository(pool)

	statsService := stats.NewService(users, problems, logger)
	judgeService := judge.NewService(submissions, problems, users, tasks, statsService, exec, logger)

	consumer := queue.NewConsumer(conn, judge.QueueHandler(judgeService, tasks), queue.ConsumerConfig{
		Workers:  cfg.JudgeWorkers,
		Prefetch: cfg.JudgePrefetch,
	})
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	// The worker exposes its own metrics; it never shares a process with
	// the API server.
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	metricsServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.Port)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	logger.Info("judge worker started", "workers", cfg.JudgeWorkers, "prefetch", cfg.JudgePrefetch)

	<-ctx.Done()
	logger.Info("received signal, shutting down")

	consumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown error", "error", err)
	}

	logger.Info("worker stopped")
	return nil
}
