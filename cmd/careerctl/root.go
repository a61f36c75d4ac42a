package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/career-lab/internal/config"
	"github.com/cuongbtq/career-lab/internal/generation"
	"github.com/cuongbtq/career-lab/internal/n8n"
	"github.com/cuongbtq/career-lab/shared/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/careerctl/config.yaml"

func newRootCommand() *cobra.Command {
	var configFlag string
	var jsonFlag bool
	var verboseFlag bool

	ctx := &commandContext{configFlag: &configFlag, jsonFlag: &jsonFlag, verboseFlag: &verboseFlag}

	rootCmd := &cobra.Command{
		Use:           "careerctl",
		Short:         "Run and inspect career-lab generations against n8n",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log polling progress to stderr")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newCancelCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))

	return rootCmd
}

// commandContext lazily loads what every subcommand shares
type commandContext struct {
	configFlag  *string
	jsonFlag    *bool
	verboseFlag *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
	logger     *logger.Logger
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		_ = godotenv.Load()

		path := strings.TrimSpace(*c.configFlag)
		if path == "" {
			path = os.Getenv("CAREERCTL_CONFIG_PATH")
		}
		if path == "" {
			path = defaultConfigPath
		}

		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("failed to load config: %w", err)
			return
		}
		if err := cfg.ValidateClientConfig(); err != nil {
			c.configErr = fmt.Errorf("invalid config: %w", err)
			return
		}

		level := cfg.Logging.Level
		if level == "" {
			level = "warn"
		}
		if *c.verboseFlag {
			level = "debug"
		}
		c.logger, err = logger.New(&logger.Config{
			Level:      level,
			Format:     cfg.Logging.Format,
			Output:     "stderr",
			TimeFormat: time.TimeOnly,
		})
		if err != nil {
			c.configErr = fmt.Errorf("failed to initialize logger: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) log() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger.Logger
}

func (c *commandContext) n8nClient() (*n8n.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return n8n.NewClient(cfg.N8N.ClientConfig(), n8n.WithLogger(c.log())), nil
}

func (c *commandContext) generator() (*generation.Service, *n8n.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	genCfg, err := cfg.N8N.GenerationConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := c.n8nClient()
	if err != nil {
		return nil, nil, err
	}
	return generation.NewService(client, genCfg, c.log()), client, nil
}
