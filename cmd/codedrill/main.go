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

	"github.com/codedrill/codedrill/internal/api"
	"github.com/codedrill/codedrill/internal/config"
	"github.com/codedrill/codedrill/internal/executor"
	"github.com/codedrill/codedrill/internal/judge"
	"github.com/codedrill/codedrill/internal/queue"
	"github.com/codedrill/codedrill/internal/repository"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly
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

	// The API process only runs the sandbox for synchronous dry runs
	docker, err := executor.NewDockerExecutor(executor.DockerConfig{Languages: languages})
	if err != nil {
		return fmt.Errorf("create executor: %w", err)
	}
	defer docker.Close()

	exec := executor.NewResilientExecutor(docker, executor.ResilientConfig{
		MaxConcurrent: cfg.SandboxConcurrency,
		Logger:        logger,
	})

	app := api.NewApp(cfg, pool, conn, exec, logger)

	dispatcher := judge.NewDispatcher(app.Tasks, queue.NewProducer(conn), judge.DispatcherConfig{
		Interval:          cfg.DispatchInterval,
		BatchSize:         cfg.DispatchBatchSize,
		RepairInterval:    cfg.RepairInterval,
		VisibilityTimeout: cfg.VisibilityTimeout,
	}, logger)
	go dispatcher.Run(ctx)
	go dispatcher.RunRepair(ctx)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(app),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "debug", cfg.Debug)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
