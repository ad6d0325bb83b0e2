package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/pkg/config"
	"github.com/agentdeck/agentdeck/pkg/log"
)

var (
	projectPath string
	logLevel    string
	logFormat   string
)

var rootCmd = &cobra.Command{
	Use:   "agentdeck",
	Short: "agentdeck drives a coding-agent process: run prompts, queue follow-ups, checkpoint, and share sessions.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		abs, err := filepath.Abs(projectPath)
		if err != nil {
			return fmt.Errorf("resolve project path: %w", err)
		}
		projectPath = abs

		cfg, err := config.Load(projectPath)
		if err != nil {
			return err
		}
		loadedConfig = cfg

		level := logLevel
		if level == "" {
			level = cfg.Log.Level
		}
		parsed, err := log.ParseLevel(level)
		if err != nil {
			return err
		}
		format := logFormat
		if format == "" {
			format = cfg.Log.Format
		}
		return log.Init(log.Config{Level: parsed, Format: format})
	},
	SilenceUsage: true,
}

// loadedConfig is the effective configuration for the selected project,
// resolved once in PersistentPreRunE.
var loadedConfig config.Config

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectPath, "project", "p", ".", "Path to the project directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console, json")
}

func main() {
	defer func() { _ = log.Sync() }()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
