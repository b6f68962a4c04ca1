package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"quizload/internal/admin"
	"quizload/internal/broker"
	"quizload/internal/eventlog"
	"quizload/internal/logging"
	"quizload/internal/quiz"
	"quizload/internal/registration"
	"quizload/internal/sim"
)

var (
	runDevices   int
	runPrintOnly bool
	runQuiet     bool
	runTUI       bool
	runAdminAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Register devices and run the quiz load test",
	Long:  "run registers the device pool, then connects every device to the broker and plays one quiz round per device, recording events to the configured sinks.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("devices") {
			cfg.Devices = runDevices
		}
		if cmd.Flags().Changed("admin") {
			cfg.Admin.Addr = runAdminAddr
		}
		if err := cfg.Check(); err != nil {
			return err
		}
		if runTUI && logFile == "" {
			// stderr output would tear the dashboard
			logger = logging.Discard()
		}

		writer, tw, cleanup, err := newWriters(cfg, sinkOptions{printOnly: runPrintOnly, quiet: runQuiet, tui: runTUI}, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		events := eventlog.NewLogger(writer, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg, err := registration.New(cfg.Registration, logger)
		if err != nil {
			return err
		}
		reg.SetEventLog(events)
		creds, err := reg.RegisterPool(ctx, cfg.Devices, cfg.IDPrefix, cfg.NamePrefix)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("registration: %w", err)
		}
		if ctx.Err() != nil {
			logger.Warn("interrupted during registration", "registered", len(creds))
			return nil
		}

		dialer, err := broker.NewPahoDialer(cfg.Broker, logger)
		if err != nil {
			return err
		}
		orch := sim.NewOrchestrator(sim.Env{
			Dialer:  dialer,
			Events:  events,
			Log:     logger,
			Session: quiz.Join{SessionID: cfg.Session.ID, Auth: cfg.Session.Auth},
			Timing:  sim.TimingFromConfig(cfg.Timing),
		}, cfg.Timing.Stagger, cfg.Timing.MaxConcurrent)
		if tw != nil {
			orch.OnProgress(tw.SetProgress)
		}

		if cfg.Admin.Addr != "" {
			srv := admin.NewServer(orch, events, logger)
			go func() {
				if err := srv.Start(ctx, cfg.Admin.Addr); err != nil {
					logger.Error("admin server failed", "err", err)
				}
			}()
		}

		sum := orch.Run(ctx, creds)
		fmt.Fprintf(cmd.OutOrStdout(), "All simulated clients finished: %s registered=%d/%d events=%d sink_failures=%d\n",
			sum, len(creds), cfg.Devices, events.Count(), events.Failures())
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&runDevices, "devices", 0, "Override the number of devices to register")
	runCmd.Flags().BoolVar(&runPrintOnly, "print-only", false, "Print events to STDOUT only, skipping file and database sinks")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Do not print events to STDOUT")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show a live dashboard instead of event lines")
	runCmd.Flags().StringVar(&runAdminAddr, "admin", "", "Serve the status endpoint on this address (overrides config)")
}
