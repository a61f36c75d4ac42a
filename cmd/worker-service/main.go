package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/career-lab/internal/archive"
	"github.com/cuongbtq/career-lab/internal/config"
	"github.com/cuongbtq/career-lab/internal/generation"
	"github.com/cuongbtq/career-lab/internal/n8n"
	"github.com/cuongbtq/career-lab/internal/worker"
	"github.com/cuongbtq/career-lab/shared/database"
	"github.com/cuongbtq/career-lab/shared/logger"
	"github.com/cuongbtq/career-lab/shared/rabbitmq"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize database client and archive
	dbClient, err := initDatabase(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	store := archive.NewStore(dbClient.GetDB(), appLogger.Logger)
	if err := store.EnsureSchema(context.Background()); err != nil {
		dbClient.Close()
		return fmt.Errorf("failed to prepare archive: %w", err)
	}

	appLogger.Info("Database connection established",
		slog.String("driver", dbClient.Driver()),
	)

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		dbClient.Close()
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Cleanup function to close all resources
	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	// Initialize n8n client and generation service
	genCfg, err := cfg.N8N.GenerationConfig()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	n8nClient := n8n.NewClient(cfg.N8N.ClientConfig(), n8n.WithLogger(appLogger.Logger))
	generator := generation.NewService(n8nClient, genCfg, appLogger.Logger)

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:            appLogger.Logger,
		Store:             store,
		Executor:          generator,
		Consumer:          rabbitClient,
		QueueName:         cfg.RabbitMQ.Queue.Name,
		Concurrency:       cfg.Worker.Concurrency,
		MaxJobs:           cfg.Worker.MaxJobs,
		PrefetchCount:     cfg.RabbitMQ.Consumer.PrefetchCount,
		JobTimeout:        cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully",
		slog.String("worker_id", workerInstance.ID()),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancel context to stop worker
	cancel()

	// Give worker time to shutdown gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Stop worker
	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete",
		slog.String("db_stats", dbClient.Stats()),
	)
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initDatabase initializes the archive database client
func initDatabase(cfg *config.DatabaseConfig, logger *slog.Logger) (*database.Client, error) {
	return database.NewClient(cfg.ClientConfig(), logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(cfg.ClientConfig(), logger)
}
