// Event records produced by device simulations
package events

import (
	"fmt"
	"time"
)

// Kind identifies what happened to a simulated device.
type Kind string

const (
	Connected        Kind = "Connected"
	Joined           Kind = "Joined"
	Authenticated    Kind = "Authenticated"
	SessionStarted   Kind = "SessionStarted"
	QuestionReceived Kind = "QuestionReceived"
	ResponseSent     Kind = "ResponseSent"
	Timeout          Kind = "Timeout"
	Error            Kind = "Error"
	Disconnected     Kind = "Disconnected"
)

// Kinds lists every event kind in protocol order.
var Kinds = []Kind{Connected, Joined, Authenticated, SessionStarted, QuestionReceived, ResponseSent, Timeout, Error, Disconnected}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Timeout details, one per wait stage.
const (
	AuthTimeout      = "Auth timeout"
	QuizStartTimeout = "Quiz start timeout"
	QuestionTimeout  = "Question timeout"
)

// TimestampLayout is the millisecond precision layout used in the CSV sink.
const TimestampLayout = "2006-01-02 15:04:05.000"

// CSVHeader is the first row of every CSV event log.
var CSVHeader = []string{"timestamp", "client_id", "event", "details"}

// Record is one append-only event log entry.
type Record struct {
	Timestamp time.Time `json:"ts"`
	ClientID  string    `json:"client_id"`
	Kind      Kind      `json:"event"`
	Detail    string    `json:"details,omitempty"`
}

// CSV renders the record as a CSV row matching CSVHeader.
func (r Record) CSV() []string {
	return []string{r.Timestamp.Format(TimestampLayout), r.ClientID, string(r.Kind), r.Detail}
}

// String is the console form of a record.
func (r Record) String() string {
	return fmt.Sprintf("[%s] %s - %s", r.ClientID, r.Kind, r.Detail)
}

// ParseCSV is the inverse of Record.CSV. Timestamps are read in the local zone.
func ParseCSV(row []string) (Record, error) {
	if len(row) != len(CSVHeader) {
		return Record{}, fmt.Errorf("expected %d columns, got %d", len(CSVHeader), len(row))
	}
	ts, err := time.ParseInLocation(TimestampLayout, row[0], time.Local)
	if err != nil {
		return Record{}, fmt.Errorf("parse timestamp: %w", err)
	}
	k := Kind(row[2])
	if !k.Valid() {
		return Record{}, fmt.Errorf("unknown event kind %q", row[2])
	}
	return Record{Timestamp: ts, ClientID: row[1], Kind: k, Detail: row[3]}, nil
}

// Credential is what the registration service hands back for one device.
type Credential struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}
