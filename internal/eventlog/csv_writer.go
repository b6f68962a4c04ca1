package eventlog

import (
	"encoding/csv"
	"io"
	"os"

	"quizload/internal/events"
)

// CSVWriter writes records as CSV rows with a timestamp,client_id,event,details header.
// Every row is flushed so an external reader only ever sees complete lines.
type CSVWriter struct {
	w      *csv.Writer
	closer io.Closer
}

// NewCSVWriter writes the header to out and returns the writer.
func NewCSVWriter(out io.Writer) (*CSVWriter, error) {
	cw := &CSVWriter{w: csv.NewWriter(out)}
	if c, ok := out.(io.Closer); ok {
		cw.closer = c
	}
	if err := cw.write(events.CSVHeader); err != nil {
		return nil, err
	}
	return cw, nil
}

// NewCSVFileWriter creates (truncating) path and writes the header.
func NewCSVFileWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	cw, err := NewCSVWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return cw, nil
}

func (c *CSVWriter) write(row []string) error {
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// WriteEvent appends one row.
func (c *CSVWriter) WriteEvent(rec events.Record) error {
	return c.write(rec.CSV())
}

// WriteEvents appends rows and flushes once.
func (c *CSVWriter) WriteEvents(recs []events.Record) error {
	for _, r := range recs {
		if err := c.w.Write(r.CSV()); err != nil {
			return err
		}
	}
	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the underlying file, if any.
func (c *CSVWriter) Close() error {
	c.w.Flush()
	err := c.w.Error()
	if c.closer != nil {
		if e := c.closer.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
