// Package eventlog serializes event records from concurrent device simulations
// into one or more sinks.
package eventlog

import "quizload/internal/events"

// Writer is an interface to support different event sinks.
type Writer interface {
	WriteEvent(events.Record) error
}

// Optional: writers may support batch mode
type batchWriter interface {
	WriteEvents([]events.Record) error
}
