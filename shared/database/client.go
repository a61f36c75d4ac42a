package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds database connection configuration
type Config struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	Path            string // sqlite file path, ":memory:" for tests
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN builds the driver specific data source name
func (c *Config) DSN() (string, error) {
	switch c.Driver {
	case DriverPostgres, "":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host,
			c.Port,
			c.User,
			c.Password,
			c.Database,
			c.SSLMode,
		), nil
	case DriverSQLite:
		if c.Path == "" {
			return "", fmt.Errorf("sqlite path is required")
		}
		if c.Path == ":memory:" {
			return ":memory:", nil
		}
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", c.Path), nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", c.Driver)
	}
}

// Client represents a database client
type Client struct {
	db     *sqlx.DB
	config *Config
	logger *slog.Logger
}

// NewClient creates a new database client and verifies the connection
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	driver := config.Driver
	if driver == "" {
		driver = DriverPostgres
	}

	dsn, err := config.DSN()
	if err != nil {
		return nil, fmt.Errorf("failed to build dsn: %w", err)
	}

	logger.Info("Connecting to database",
		slog.String("driver", driver),
		slog.String("host", config.Host),
		slog.String("database", config.Database),
		slog.String("path", config.Path),
	)

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		logger.Error("Failed to connect to database",
			slog.String("driver", driver),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// a single connection keeps one shared in-memory database and serializes writers
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("Failed to ping database",
			slog.Any("error", err),
		)
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}

	logger.Info("Successfully connected to database",
		slog.String("driver", driver),
		slog.Int("max_open_conns", db.Stats().MaxOpenConnections),
	)

	return &Client{
		db:     db,
		config: config,
		logger: logger,
	}, nil
}

// GetDB returns the underlying sqlx.DB instance
func (c *Client) GetDB() *sqlx.DB {
	return c.db
}

// Driver returns the driver name the client was opened with
func (c *Client) Driver() string {
	return c.db.DriverName()
}

// Close closes the database connection
func (c *Client) Close() error {
	c.logger.Info("Closing database connection")

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("Database connection closed successfully")
	return nil
}

// Ping checks the database connection
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Stats returns database statistics
func (c *Client) Stats() string {
	stats := c.db.Stats()
	return fmt.Sprintf(
		"MaxOpenConns: %d, OpenConns: %d, InUse: %d, Idle: %d, WaitCount: %d, WaitDuration: %s",
		stats.MaxOpenConnections,
		stats.OpenConnections,
		stats.InUse,
		stats.Idle,
		stats.WaitCount,
		stats.WaitDuration,
	)
}

// HealthCheck performs a health check on the database
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := c.db.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("database query health check failed: %w", err)
	}

	return nil
}
