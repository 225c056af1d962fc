// Package cli assembles the configuration, synthesis engine, pipeline, and
// playback sinks into runnable commands.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Till-X/xiaozhi-sever-DIY/internal/config"
)

var version = "0.1.0-dev"

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "voicepipe",
		Short:   "Streaming speech delivery pipeline",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := config.ApplyFlags(&cfg, cmd.Flags()); err != nil {
				return err
			}
			activeCfg = cfg
			setupLogger(cfg.Telemetry.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional YAML config file")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newConsoleCmd())
	cmd.AddCommand(newSpeakCmd())
	cmd.AddCommand(newReportsCmd())

	return cmd
}

// Execute runs the root command until it finishes or the context ends.
func Execute(ctx context.Context) {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(level string) {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(level)})
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
