// Writer implementation printing events to STDOUT
package eventlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"quizload/internal/events"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// StdoutWriter prints records either as JSON lines or as colored console lines.
type StdoutWriter struct {
	out      io.Writer
	colorize bool
}

// NewStdoutWriter creates a StdoutWriter writing to os.Stdout.
func NewStdoutWriter(colorize bool) *StdoutWriter {
	return &StdoutWriter{out: os.Stdout, colorize: colorize}
}

// WriteEvent outputs a single record.
func (w *StdoutWriter) WriteEvent(rec events.Record) error {
	if !w.colorize {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w.out, string(data))
		return err
	}
	line := fmt.Sprintf("%s%s%s %s[%s]%s %s%s%s",
		colorGray, rec.Timestamp.Format(events.TimestampLayout), colorReset,
		colorBlue, rec.ClientID, colorReset,
		kindColor(rec.Kind), rec.Kind, colorReset)
	if rec.Detail != "" {
		line += " - " + rec.Detail
	}
	_, err := fmt.Fprintln(w.out, line)
	return err
}

// WriteEvents outputs multiple records.
func (w *StdoutWriter) WriteEvents(recs []events.Record) error {
	for _, r := range recs {
		if err := w.WriteEvent(r); err != nil {
			return err
		}
	}
	return nil
}

func kindColor(k events.Kind) string {
	switch k {
	case events.Timeout:
		return colorYellow
	case events.Error:
		return colorRed
	case events.ResponseSent:
		return colorGreen
	case events.QuestionReceived, events.SessionStarted:
		return colorCyan
	case events.Disconnected:
		return colorGray
	default:
		return colorMagenta
	}
}
