package main

import (
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/term"

	"quizload/internal/config"
	"quizload/internal/eventlog"
)

// Network and terminal sinks are written from a background queue so a slow
// database or a busy dashboard cannot stall the devices.
const (
	asyncQueue = 4096
	asyncBatch = 100
	asyncFlush = 250 * time.Millisecond
)

// sinkOptions select the console side of the event sinks.
type sinkOptions struct {
	printOnly bool // console only, no files or database
	quiet     bool // no console output
	tui       bool // interactive dashboard instead of plain lines
}

// newWriters assembles the event sinks from cfg and opts. It returns the
// combined writer, the TUI writer when enabled, and a cleanup function that
// flushes and closes everything.
func newWriters(cfg *config.Config, opts sinkOptions, log *slog.Logger) (eventlog.Writer, *eventlog.TUIWriter, func(), error) {
	var (
		ws      []eventlog.Writer
		closers []io.Closer
		tw      *eventlog.TUIWriter
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.Warn("close event sink", "err", err)
			}
		}
	}
	fail := func(err error) (eventlog.Writer, *eventlog.TUIWriter, func(), error) {
		cleanup()
		return nil, nil, nil, err
	}

	if !opts.printOnly {
		if cfg.Output.CSV != "" {
			cw, err := eventlog.NewCSVFileWriter(cfg.Output.CSV)
			if err != nil {
				return fail(err)
			}
			ws, closers = append(ws, cw), append(closers, cw)
		}
		if cfg.Output.JSONL != "" {
			fw, err := eventlog.NewFileWriter(cfg.Output.JSONL)
			if err != nil {
				return fail(err)
			}
			ws, closers = append(ws, fw), append(closers, fw)
		}
		if g := cfg.Output.Greptime; g.Endpoint != "" {
			gw, err := eventlog.NewGreptimeWriter(g.Endpoint, g.Database, g.Table, log)
			if err != nil {
				return fail(err)
			}
			aw := eventlog.NewAsyncWriter(gw, asyncQueue, asyncBatch, asyncFlush, log)
			ws, closers = append(ws, aw), append(closers, aw)
		}
	}

	switch {
	case opts.tui:
		tw = eventlog.NewTUIWriter("quizload")
		aw := eventlog.NewAsyncWriter(tw, asyncQueue, asyncBatch, asyncFlush, log)
		ws, closers = append(ws, aw), append(closers, aw)
	case !opts.quiet:
		ws = append(ws, eventlog.NewStdoutWriter(term.IsTerminal(int(os.Stdout.Fd()))))
	}

	if len(ws) == 1 {
		return ws[0], tw, cleanup, nil
	}
	return eventlog.NewMultiWriter(ws...), tw, cleanup, nil
}
