package eventlog

import (
	"encoding/json"
	"os"

	"quizload/internal/events"
)

// FileWriter writes event records to a JSONL file.
type FileWriter struct {
	file *os.File
	enc  *json.Encoder
}

// NewFileWriter creates a FileWriter, truncating path.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileWriter{file: f, enc: json.NewEncoder(f)}, nil
}

// WriteEvent logs a single record.
func (f *FileWriter) WriteEvent(rec events.Record) error {
	return f.enc.Encode(rec)
}

// WriteEvents logs multiple records.
func (f *FileWriter) WriteEvents(recs []events.Record) error {
	for _, r := range recs {
		if err := f.WriteEvent(r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying file.
func (f *FileWriter) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}
