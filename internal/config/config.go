package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cuongbtq/career-lab/internal/generation"
	"github.com/cuongbtq/career-lab/internal/n8n"
	"github.com/cuongbtq/career-lab/shared/database"
	"github.com/cuongbtq/career-lab/shared/rabbitmq"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Environment variables that override values from the YAML file
const (
	EnvN8NBaseURL         = "N8N_BASE_URL"
	EnvDatabasePassword   = "DATABASE_PASSWORD"
	EnvRabbitMQPassword   = "RABBITMQ_PASSWORD"
	EnvDatabaseSQLitePath = "DATABASE_SQLITE_PATH"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	N8N      N8NConfig      `yaml:"n8n"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds archive database configuration. Driver is
// "postgres" (default) or "sqlite".
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
	DeadLetter string `yaml:"dead_letter"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int  `yaml:"prefetch_count"`
	AutoAck       bool `yaml:"auto_ack"`
	Exclusive     bool `yaml:"exclusive"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	EnableCaller     bool   `yaml:"enable_caller"`
	EnableStackTrace bool   `yaml:"enable_stack_trace"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	MaxJobs           int           `yaml:"max_jobs"`
	MaxRetries        int           `yaml:"max_retries"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// N8NConfig holds the webhook client settings. Zero durations fall back to
// the client defaults (2s interval, 5m budget).
type N8NConfig struct {
	BaseURL            string            `yaml:"base_url"`
	PollInterval       time.Duration     `yaml:"poll_interval"`
	MaxPollingTime     time.Duration     `yaml:"max_polling_time"`
	MaxTransientErrors int               `yaml:"max_transient_errors"`
	HTTPTimeout        time.Duration     `yaml:"http_timeout"`
	Endpoints          map[string]string `yaml:"endpoints"`
}

// Load reads and parses the configuration file, then applies environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvOverrides()

	return &config, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvN8NBaseURL); v != "" {
		c.N8N.BaseURL = v
	}
	if v := os.Getenv(EnvDatabasePassword); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv(EnvDatabaseSQLitePath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvRabbitMQPassword); v != "" {
		c.RabbitMQ.Password = v
	}
}

// ValidateAPIConfig checks the sections the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if err := c.validateN8N(); err != nil {
		return err
	}

	// synchronous generations answer only after polling ends
	if budget := c.N8N.PollingBudget(); c.Server.WriteTimeout > 0 && c.Server.WriteTimeout < budget {
		return fmt.Errorf("server write_timeout (%s) must not be shorter than n8n max_polling_time (%s)", c.Server.WriteTimeout, budget)
	}

	return nil
}

// ValidateWorkerConfig checks the sections the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if err := c.validateN8N(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.MaxJobs <= 0 {
		return fmt.Errorf("worker max_jobs must be greater than 0")
	}

	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("worker max_retries must not be negative")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.HeartbeatInterval <= 0 {
		return fmt.Errorf("worker heartbeat_interval must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	// the job must be able to outlive one polling budget
	if budget := c.N8N.PollingBudget(); c.Worker.JobTimeout < budget {
		return fmt.Errorf("worker job_timeout (%s) must not be shorter than n8n max_polling_time (%s)", c.Worker.JobTimeout, budget)
	}

	return nil
}

// ValidateClientConfig checks the sections careerctl needs
func (c *Config) ValidateClientConfig() error {
	return c.validateN8N()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "", "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}

		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}

		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.RabbitMQ.Queue.DeadLetter != "" && c.RabbitMQ.Queue.DeadLetter == c.RabbitMQ.Queue.Name {
		return fmt.Errorf("rabbitmq dead_letter queue must differ from the work queue")
	}

	return nil
}

func (c *Config) validateN8N() error {
	if strings.TrimSpace(c.N8N.BaseURL) == "" {
		return fmt.Errorf("n8n base_url is required")
	}

	u, err := url.Parse(c.N8N.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid n8n base_url: %q", c.N8N.BaseURL)
	}

	if c.N8N.PollInterval < 0 || c.N8N.MaxPollingTime < 0 || c.N8N.HTTPTimeout < 0 {
		return fmt.Errorf("n8n durations must not be negative")
	}

	if c.N8N.MaxPollingTime > 0 && c.N8N.PollInterval > c.N8N.MaxPollingTime {
		return fmt.Errorf("n8n poll_interval (%s) must not exceed max_polling_time (%s)", c.N8N.PollInterval, c.N8N.MaxPollingTime)
	}

	if c.N8N.MaxTransientErrors < 0 {
		return fmt.Errorf("n8n max_transient_errors must not be negative")
	}

	if _, err := c.N8N.GenerationConfig(); err != nil {
		return err
	}

	return nil
}

// ClientConfig converts the section into archive database settings
func (c *DatabaseConfig) ClientConfig() *database.Config {
	return &database.Config{
		Driver:          c.Driver,
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Database,
		SSLMode:         c.SSLMode,
		Path:            c.Path,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// ClientConfig converts the section into broker client settings
func (c *RabbitMQConfig) ClientConfig() *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               c.Host,
		Port:               c.Port,
		User:               c.User,
		Password:           c.Password,
		VHost:              c.VHost,
		ExchangeName:       c.Exchange.Name,
		ExchangeType:       c.Exchange.Type,
		ExchangeDurable:    c.Exchange.Durable,
		ExchangeAutoDelete: c.Exchange.AutoDelete,
		QueueName:          c.Queue.Name,
		QueueDurable:       c.Queue.Durable,
		QueueAutoDelete:    c.Queue.AutoDelete,
		QueueExclusive:     c.Queue.Exclusive,
		DeadLetterQueue:    c.Queue.DeadLetter,
		RoutingKey:         c.RoutingKey,
		RetryAttempts:      c.Connection.RetryAttempts,
		RetryInterval:      c.Connection.RetryInterval,
		Heartbeat:          c.Connection.Heartbeat,
		ConnectionTimeout:  c.Connection.ConnectionTimeout,
		PublishRetries:     c.Publish.RetryAttempts,
		PublishRetryDelay:  c.Publish.RetryInterval,
		PublishBackoffMult: c.Publish.BackoffMultiplier,
	}
}

// PollingBudget is the effective max polling time, applying the client default
func (c *N8NConfig) PollingBudget() time.Duration {
	if c.MaxPollingTime <= 0 {
		return n8n.DefaultMaxPollingTime
	}
	return c.MaxPollingTime
}

// ClientConfig converts the section into webhook client settings
func (c *N8NConfig) ClientConfig() n8n.Config {
	return n8n.Config{
		BaseURL:            c.BaseURL,
		PollInterval:       c.PollInterval,
		MaxPollingTime:     c.MaxPollingTime,
		MaxTransientErrors: c.MaxTransientErrors,
		HTTPTimeout:        c.HTTPTimeout,
	}
}

// GenerationConfig merges configured endpoint paths over the defaults
func (c *N8NConfig) GenerationConfig() (generation.Config, error) {
	endpoints := generation.DefaultEndpoints()
	for raw, path := range c.Endpoints {
		kind, err := generation.ParseKind(raw)
		if err != nil {
			return generation.Config{}, fmt.Errorf("invalid n8n endpoint: %w", err)
		}
		if path = strings.Trim(strings.TrimSpace(path), "/"); path != "" {
			endpoints[kind] = path
		}
	}

	return generation.Config{
		Endpoints: endpoints,
		Poll: n8n.PollOptions{
			Interval:           c.PollInterval,
			MaxPollingTime:     c.MaxPollingTime,
			MaxTransientErrors: c.MaxTransientErrors,
		},
	}, nil
}
