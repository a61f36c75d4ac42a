package config

import (
	"testing"
	"time"

	"github.com/cuongbtq/career-lab/internal/generation"
	"github.com/cuongbtq/career-lab/internal/n8n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "career_lab", cfg.Database.Database)
				assert.Equal(t, "generation_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "generation_queue", cfg.RabbitMQ.Queue.Name)
				assert.Equal(t, "career-lab-api", cfg.App.Name)
				assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)

				assert.Equal(t, "https://n8n.example.com", cfg.N8N.BaseURL)
				assert.Equal(t, 2*time.Second, cfg.N8N.PollInterval)
				assert.Equal(t, 5*time.Minute, cfg.N8N.MaxPollingTime)
				assert.Equal(t, "research-topics", cfg.N8N.Endpoints["topics"])
				assert.Equal(t, 2, cfg.Worker.MaxRetries)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvN8NBaseURL, "http://n8n.internal:5678")
	t.Setenv(EnvDatabasePassword, "from-env")
	t.Setenv(EnvRabbitMQPassword, "rabbit-env")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "http://n8n.internal:5678", cfg.N8N.BaseURL)
	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "rabbit-env", cfg.RabbitMQ.Password)
}

// validConfig returns a config that passes every validator
func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "career_lab",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "generation_exchange",
			},
			Queue: QueueConfig{
				Name: "generation_queue",
			},
		},
		Worker: WorkerConfig{
			Concurrency:       2,
			MaxJobs:           4,
			JobTimeout:        6 * time.Minute,
			HeartbeatInterval: 30 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		N8N: N8NConfig{
			BaseURL:        "https://n8n.example.com",
			PollInterval:   2 * time.Second,
			MaxPollingTime: 5 * time.Minute,
		},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "invalid server port - too low", mutate: func(c *Config) { c.Server.Port = 0 }, errString: "invalid server port"},
		{name: "invalid server port - too high", mutate: func(c *Config) { c.Server.Port = 70000 }, errString: "invalid server port"},
		{name: "empty database host", mutate: func(c *Config) { c.Database.Host = "" }, errString: "database host is required"},
		{name: "empty database name", mutate: func(c *Config) { c.Database.Database = "" }, errString: "database name is required"},
		{
			name:   "sqlite needs no host",
			mutate: func(c *Config) { c.Database = DatabaseConfig{Driver: "sqlite", Path: "archive.db"} },
		},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database = DatabaseConfig{Driver: "sqlite"} }, errString: "database path is required"},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, errString: "unsupported database driver"},
		{name: "empty rabbitmq host", mutate: func(c *Config) { c.RabbitMQ.Host = "" }, errString: "rabbitmq host is required"},
		{name: "empty exchange name", mutate: func(c *Config) { c.RabbitMQ.Exchange.Name = "" }, errString: "rabbitmq exchange name is required"},
		{name: "empty queue name", mutate: func(c *Config) { c.RabbitMQ.Queue.Name = "" }, errString: "rabbitmq queue name is required"},
		{
			name:      "dead letter equals work queue",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.DeadLetter = c.RabbitMQ.Queue.Name },
			errString: "dead_letter queue must differ",
		},
		{
			name:      "write timeout shorter than polling budget",
			mutate:    func(c *Config) { c.Server.WriteTimeout = time.Minute },
			errString: "server write_timeout (1m0s) must not be shorter",
		},
		{
			name: "write timeout shorter than default polling budget",
			mutate: func(c *Config) {
				c.N8N.MaxPollingTime = 0
				c.Server.WriteTimeout = 4 * time.Minute
			},
			errString: "server write_timeout",
		},
		{name: "write timeout covering the budget", mutate: func(c *Config) { c.Server.WriteTimeout = 330 * time.Second }},
		{name: "missing n8n base url", mutate: func(c *Config) { c.N8N.BaseURL = "" }, errString: "n8n base_url is required"},
		{name: "relative n8n base url", mutate: func(c *Config) { c.N8N.BaseURL = "/n8n" }, errString: "invalid n8n base_url"},
		{
			name:      "interval longer than budget",
			mutate:    func(c *Config) { c.N8N.PollInterval = 10 * time.Minute },
			errString: "must not exceed max_polling_time",
		},
		{name: "negative transient cap", mutate: func(c *Config) { c.N8N.MaxTransientErrors = -1 }, errString: "max_transient_errors"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "zero concurrency", mutate: func(c *Config) { c.Worker.Concurrency = 0 }, errString: "worker concurrency"},
		{name: "zero max jobs", mutate: func(c *Config) { c.Worker.MaxJobs = 0 }, errString: "worker max_jobs"},
		{name: "negative retries", mutate: func(c *Config) { c.Worker.MaxRetries = -1 }, errString: "worker max_retries"},
		{name: "zero heartbeat", mutate: func(c *Config) { c.Worker.HeartbeatInterval = 0 }, errString: "worker heartbeat_interval"},
		{
			name:      "job timeout shorter than polling budget",
			mutate:    func(c *Config) { c.Worker.JobTimeout = time.Minute },
			errString: "must not be shorter than n8n max_polling_time",
		},
		{
			name: "job timeout shorter than default polling budget",
			mutate: func(c *Config) {
				c.N8N.MaxPollingTime = 0
				c.N8N.PollInterval = time.Second
				c.Worker.JobTimeout = time.Minute
			},
			errString: "must not be shorter than n8n max_polling_time (5m0s)",
		},
		{name: "server port is not needed", mutate: func(c *Config) { c.Server.Port = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateClientConfig(t *testing.T) {
	cfg := &Config{N8N: N8NConfig{BaseURL: "http://localhost:5678"}}
	assert.NoError(t, cfg.ValidateClientConfig())

	cfg.N8N.BaseURL = "localhost:5678"
	assert.Error(t, cfg.ValidateClientConfig())

	cfg.N8N.BaseURL = "http://localhost:5678"
	cfg.N8N.Endpoints = map[string]string{"essay": "essay"}
	assert.ErrorIs(t, cfg.ValidateClientConfig(), generation.ErrUnknownKind)
}

func TestN8NConfig_GenerationConfig(t *testing.T) {
	cfg := N8NConfig{
		BaseURL:            "http://localhost:5678",
		PollInterval:       time.Second,
		MaxPollingTime:     time.Minute,
		MaxTransientErrors: 3,
		Endpoints: map[string]string{
			"topics":          "/custom-topics/",
			"career-sentence": "  ",
		},
	}

	gen, err := cfg.GenerationConfig()
	require.NoError(t, err)
	assert.Equal(t, "custom-topics", gen.Endpoints[generation.KindTopics])
	assert.Equal(t, "career-sentence", gen.Endpoints[generation.KindCareerSentence])
	assert.Equal(t, "research-methods", gen.Endpoints[generation.KindResearchMethods])
	assert.Equal(t, n8n.PollOptions{Interval: time.Second, MaxPollingTime: time.Minute, MaxTransientErrors: 3}, gen.Poll)

	client := cfg.ClientConfig()
	assert.Equal(t, "http://localhost:5678", client.BaseURL)
	assert.Equal(t, 3, client.MaxTransientErrors)
}

func TestSectionClientConfigs(t *testing.T) {
	cfg := validConfig()
	cfg.RabbitMQ.Queue.DeadLetter = "generation_dead"
	cfg.RabbitMQ.Publish = PublishConfig{RetryAttempts: 4, RetryInterval: time.Second, BackoffMultiplier: 1.5}

	rabbit := cfg.RabbitMQ.ClientConfig()
	assert.Equal(t, "generation_queue", rabbit.QueueName)
	assert.Equal(t, "generation_dead", rabbit.DeadLetterQueue)
	assert.Equal(t, "generation_exchange", rabbit.ExchangeName)
	assert.Equal(t, 4, rabbit.PublishRetries)
	assert.Equal(t, time.Second, rabbit.PublishRetryDelay)
	assert.Equal(t, 1.5, rabbit.PublishBackoffMult)

	db := cfg.Database.ClientConfig()
	assert.Equal(t, "localhost", db.Host)
	assert.Equal(t, 5432, db.Port)
	assert.Equal(t, "career_lab", db.Database)
}

func TestN8NConfig_PollingBudget(t *testing.T) {
	assert.Equal(t, n8n.DefaultMaxPollingTime, (&N8NConfig{}).PollingBudget())
	assert.Equal(t, time.Minute, (&N8NConfig{MaxPollingTime: time.Minute}).PollingBudget())
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load sqlite config", func(t *testing.T) {
		cfg, err := Load("testdata/sqlite_config.yaml")
		require.NoError(t, err)

		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "./data/archive.db", cfg.Database.Path)
		require.NoError(t, cfg.ValidateAPIConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}

func TestPortConstants(t *testing.T) {
	assert.Equal(t, 1, MinPort)
	assert.Equal(t, 65535, MaxPort)
}

func TestSampleConfigs(t *testing.T) {
	api, err := Load("../../configs/api-service/config.yaml")
	require.NoError(t, err)
	assert.NoError(t, api.ValidateAPIConfig())

	worker, err := Load("../../configs/worker-service/config.yaml")
	require.NoError(t, err)
	assert.NoError(t, worker.ValidateWorkerConfig())

	cli, err := Load("../../configs/careerctl/config.yaml")
	require.NoError(t, err)
	assert.NoError(t, cli.ValidateClientConfig())
}
