package eventlog

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"quizload/internal/events"
)

// ReplayLog replays CSV event records from r to writer. A speed >0 scales the
// original gaps between records (2 plays twice as fast). If speed <= 0, no
// artificial delay is inserted.
func ReplayLog(r io.Reader, writer Writer, speed float64) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(events.CSVHeader)
	first := true
	next := func() (events.Record, error) {
		for {
			row, err := cr.Read()
			if err != nil {
				return events.Record{}, err
			}
			if first {
				first = false
				if slices.Equal(row, events.CSVHeader) {
					continue
				}
			}
			return events.ParseCSV(row)
		}
	}
	return replay(next, writer, speed)
}

// ReplayJSONL replays JSON line records from r to writer.
func ReplayJSONL(r io.Reader, writer Writer, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	next := func() (events.Record, error) {
		var rec events.Record
		err := dec.Decode(&rec)
		return rec, err
	}
	return replay(next, writer, speed)
}

func replay(next func() (events.Record, error), writer Writer, speed float64) (int, error) {
	var prev time.Time
	n := 0
	for {
		rec, err := next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("record %d: %w", n+1, err)
		}
		if !prev.IsZero() && speed > 0 {
			diff := rec.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				time.Sleep(diff)
			}
		}
		if err := writer.WriteEvent(rec); err != nil {
			return n, err
		}
		n++
		prev = rec.Timestamp
	}
}

// ReplayLogFile opens a recorded log and replays it. Files ending in .jsonl or
// .json are read as JSON lines, anything else as CSV.
func ReplayLogFile(path string, writer Writer, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".json":
		return ReplayJSONL(f, writer, speed)
	default:
		return ReplayLog(f, writer, speed)
	}
}
