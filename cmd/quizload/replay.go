package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"quizload/internal/eventlog"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
	replayTUI       bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded event log",
	Long:  "replay feeds event records from a CSV or JSONL log back into the configured sinks, preserving their original spacing.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// never append a replay to the log being replayed
		cfg.Output.CSV, cfg.Output.JSONL = "", ""
		writer, _, cleanup, err := newWriters(cfg, sinkOptions{printOnly: replayPrintOnly, tui: replayTUI}, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		n, err := eventlog.ReplayLogFile(replayInput, writer, replaySpeed)
		logger.Info("replay finished", "records", n)
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to event log file (.csv or .jsonl)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 for no delay)")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print events to STDOUT only")
	replayCmd.Flags().BoolVar(&replayTUI, "tui", false, "Show the replay in the live dashboard")
	replayCmd.MarkFlagRequired("input")
}
