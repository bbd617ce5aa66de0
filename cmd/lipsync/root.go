package main

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/normanking/lipsync/internal/config"
	"github.com/normanking/lipsync/internal/logging"
)

const skipConfigLoad = "skipConfigLoad"

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	logFileFlag  *bool

	once   sync.Once
	config *config.Config
	logger *logging.Logger
	err    error
}

func newCommandContext(configFlag, logLevelFlag *string, logFileFlag *bool) *commandContext {
	return &commandContext{configFlag: configFlag, logLevelFlag: logLevelFlag, logFileFlag: logFileFlag}
}

func (c *commandContext) ensure() error {
	c.once.Do(func() {
		cfg, err := config.Load(c.configPath())
		if err != nil {
			c.err = err
			return
		}
		if lvl := strings.TrimSpace(*c.logLevelFlag); lvl != "" {
			cfg.Logging.Level = lvl
		}
		if *c.logFileFlag {
			cfg.Logging.File = true
		}
		logger, err := logging.New(cfg.LoggerSettings())
		if err != nil {
			c.err = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.err
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// watchPath is the file hot reload follows: the explicit flag, else the
// default file when it exists.
func (c *commandContext) watchPath() string {
	if p := c.configPath(); p != "" {
		return p
	}
	p, err := config.DefaultPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

func (c *commandContext) close() {
	if c.logger != nil {
		c.logger.Close()
	}
}

func newRootCommand() *cobra.Command {
	var configFlag, logLevelFlag string
	var logFileFlag bool
	ctx := newCommandContext(&configFlag, &logLevelFlag, &logFileFlag)

	rootCmd := &cobra.Command{
		Use:           "lipsync",
		Short:         "Spectral lipsync for 3D avatars",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfigLoad] == "true" {
				return nil
			}
			return ctx.ensure()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logFileFlag, "log-file", false, "Also write logs to logging.dir (default ~/.lipsync/logs)")

	rootCmd.AddCommand(newAnalyzeCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
