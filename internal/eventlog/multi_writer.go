package eventlog

import (
	"errors"
	"io"

	"quizload/internal/events"
)

// MultiWriter fans records out to multiple writers. Every writer is attempted
// even if an earlier one fails.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a new MultiWriter, skipping nil writers.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// WriteEvent sends a record to all writers.
func (mw *MultiWriter) WriteEvent(rec events.Record) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteEvent(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteEvents sends records to all writers, using batch mode if supported.
func (mw *MultiWriter) WriteEvents(recs []events.Record) error {
	var errs []error
	for _, w := range mw.writers {
		if bw, ok := w.(batchWriter); ok {
			if err := bw.WriteEvents(recs); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		for _, r := range recs {
			if err := w.WriteEvent(r); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that implements io.Closer.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
