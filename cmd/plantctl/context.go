package main

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kirillkom/plant-catalogue/internal/bootstrap"
	"github.com/kirillkom/plant-catalogue/internal/config"
	"github.com/kirillkom/plant-catalogue/internal/observability/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		path := os.Getenv(config.FileEnv)
		if c.configFlag != nil && strings.TrimSpace(*c.configFlag) != "" {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.LoadFrom(path)
	})
	return c.config, c.configErr
}

// logger writes human-readable logs to stderr so stdout stays machine-readable.
func (c *commandContext) logger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	level := "warn"
	if cfg.LogLevel != "" && cfg.LogLevel != "info" {
		level = cfg.LogLevel
	}
	if c.logLevelFlag != nil && *c.logLevelFlag != "" {
		level = *c.logLevelFlag
	}
	return logging.New(cmd.ErrOrStderr(), "text", "plantctl", level)
}

// openApp wires the application for one command. mutate may adjust the loaded
// configuration first. The caller closes the app.
func (c *commandContext) openApp(cmd *cobra.Command, opts bootstrap.Options, mutate func(*config.Config)) (*bootstrap.App, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(&cfg)
	}
	opts.Service = "plantctl"
	opts.Logger = c.logger(cmd, cfg)
	return bootstrap.New(cmd.Context(), cfg, opts)
}
