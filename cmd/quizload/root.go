package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"quizload/internal/config"
	"quizload/internal/logging"
)

var (
	configPath string
	schemaPath string
	logLevel   string
	logFormat  string
	logFile    string

	logger  = slog.Default()
	logSink io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "quizload",
	Short: "MQTT quiz load testing harness",
	Long:  "quizload registers simulated devices and drives each one through a live quiz session over MQTT, recording per-device events for latency analysis.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(cmd.ErrOrStderr())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logSink != nil {
			logSink.Close()
		}
	},
	SilenceUsage: true,
}

// setupLogging builds the diagnostic logger. With --log-file set, logs go
// there instead of stderr.
func setupLogging(stderr io.Writer) error {
	out := stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		out, logSink = f, f
	}
	l, err := logging.NewWithWriter(out, logLevel, logFormat)
	if err != nil {
		return err
	}
	logger = l
	slog.SetDefault(l)
	return nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath, schemaPath)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/quizload.yaml", "Path to load test configuration YAML")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "Path to CUE schema file (defaults to the built-in schema)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Diagnostic log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Diagnostic log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write diagnostic logs to this file instead of stderr")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(replayCmd)
}
