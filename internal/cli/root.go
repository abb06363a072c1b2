// Package cli implements the regbuddy commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/regbuddy/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var logLevel string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "regbuddy",
	Short:         "Regulation Buddy server",
	Long:          "Regulation Buddy: mood check-ins, guided exercises, text chat and realtime voice conversations for kids.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		setupLogging()
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
}

func setupLogging() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

// loadConfig reads .env, if present, and then the environment.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
