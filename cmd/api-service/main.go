package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/career-lab/internal/api/handler"
	"github.com/cuongbtq/career-lab/internal/api/router"
	"github.com/cuongbtq/career-lab/internal/archive"
	"github.com/cuongbtq/career-lab/internal/config"
	"github.com/cuongbtq/career-lab/internal/generation"
	"github.com/cuongbtq/career-lab/internal/n8n"
	"github.com/cuongbtq/career-lab/internal/session"
	"github.com/cuongbtq/career-lab/shared/database"
	"github.com/cuongbtq/career-lab/shared/logger"
	"github.com/cuongbtq/career-lab/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// sessionPruneInterval is how often idle session controllers are dropped
const sessionPruneInterval = 10 * time.Minute

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
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize database client and archive
	dbClient, err := initDatabase(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	store := archive.NewStore(dbClient.GetDB(), appLogger.Logger)
	if err := store.EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("failed to prepare archive: %w", err)
	}

	appLogger.Info("Database connection established",
		slog.String("driver", dbClient.Driver()),
	)

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	// Initialize n8n client and generation service
	genCfg, err := cfg.N8N.GenerationConfig()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	n8nClient := n8n.NewClient(cfg.N8N.ClientConfig(), n8n.WithLogger(appLogger.Logger))
	generator := generation.NewService(n8nClient, genCfg, appLogger.Logger, generation.WithRecorder(store))

	appLogger.Info("n8n client configured",
		slog.String("base_url", n8nClient.BaseURL()),
	)

	sessions := session.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pruneSessions(ctx, sessions, appLogger.Logger)

	// Initialize router
	r := initRouter(cfg, &handler.Dependencies{
		Logger:      appLogger.Logger,
		Generator:   generator,
		Sessions:    sessions,
		Notifier:    n8nClient,
		Store:       store,
		Publisher:   rabbitClient,
		Database:    dbClient,
		MaxRetries:  cfg.Worker.MaxRetries,
		ServiceName: cfg.App.Name,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...",
			slog.String("signal", sig.String()),
		)
	case err := <-serverErr:
		appLogger.Error("Server failed to start",
			slog.Any("error", err),
		)
		return err
	}

	// in-flight generations end as cancelled and are still archived
	for _, id := range sessions.CancelAll() {
		n8nClient.NotifyCancel(context.Background(), id)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// pruneSessions periodically drops idle session controllers
func pruneSessions(ctx context.Context, sessions *session.Registry, logger *slog.Logger) {
	ticker := time.NewTicker(sessionPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Prune(); n > 0 {
				logger.Debug("Pruned idle sessions", slog.Int("count", n))
			}
		}
	}
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

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, deps *handler.Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps, cfg.Server.AllowedOrigins)
}
