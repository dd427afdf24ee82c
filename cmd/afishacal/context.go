package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"afishacal/internal/config"
	appLog "afishacal/internal/log"
)

// cliFlags holds values of the flags shared by every command. A flag only
// overrides the config file when it was set explicitly.
type cliFlags struct {
	configPath         string
	logLevel           string
	output             string
	acceptNationality  string
	excludeNationality string
	maxPages           int
	maxMovies          int
	skipDetails        bool
}

type commandContext struct {
	flags *cliFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *cliFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig(cmd *cobra.Command) (*config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(c.flags.configPath)
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config %s: %w", path, err)
			return
		}

		c.applyOverrides(cmd, cfg)
		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}

		level, err := appLog.ParseLevel(cfg.LogLevel)
		if err != nil {
			c.configErr = err
			return
		}
		appLog.SetLevel(level)

		appLog.Info("effective config",
			"config_path", path,
			"source_url", cfg.SourceURL,
			"output", cfg.OutputPath,
			"fetch_mode", cfg.FetchMode,
			"timezone", cfg.Timezone,
			"accept", cfg.Nationality.Accept,
			"exclude", cfg.Nationality.Exclude,
			"granularity", cfg.Granularity,
			"max_pages", cfg.MaxPages,
			"max_movies", cfg.MaxMovies,
			"skip_details", cfg.SkipDetails,
			"schedule", cfg.Schedule,
		)
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("log-level") {
		cfg.LogLevel = c.flags.logLevel
	}
	if f.Changed("output") {
		cfg.OutputPath = c.flags.output
	}
	if f.Changed("accept-nationality") {
		cfg.Nationality.Accept = c.flags.acceptNationality
	}
	if f.Changed("exclude-nationality") {
		cfg.Nationality.Exclude = c.flags.excludeNationality
	}
	if f.Changed("max-pages") {
		cfg.MaxPages = c.flags.maxPages
	}
	if f.Changed("max-movies") {
		cfg.MaxMovies = c.flags.maxMovies
	}
	if f.Changed("skip-details") {
		cfg.SkipDetails = c.flags.skipDetails
	}
}
