package eventlog

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"quizload/internal/events"
)

const subscriberBuffer = 256

// Logger is the single owned event sink shared by every device simulation.
// Writes are serialized so a record is never interleaved with another, and sink
// failures are reported on the diagnostic logger instead of to the caller.
type Logger struct {
	mu   sync.Mutex
	sink Writer
	diag *slog.Logger
	now  func() time.Time

	count    atomic.Int64
	failures atomic.Int64

	subMu  sync.Mutex
	subs   map[int]chan events.Record
	nextID int
}

// NewLogger wraps sink. A nil diag logger falls back to slog.Default().
func NewLogger(sink Writer, diag *slog.Logger) *Logger {
	if diag == nil {
		diag = slog.Default()
	}
	return &Logger{sink: sink, diag: diag, now: time.Now, subs: make(map[int]chan events.Record)}
}

// SetClock replaces the time source. Intended for tests.
func (l *Logger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Record stamps and appends an event for clientID.
func (l *Logger) Record(clientID string, kind events.Kind, detail string) {
	l.mu.Lock()
	now := l.now
	l.mu.Unlock()
	l.Append(events.Record{
		Timestamp: now().Truncate(time.Millisecond),
		ClientID:  clientID,
		Kind:      kind,
		Detail:    detail,
	})
}

// Append writes rec to the sink. It never fails the caller.
func (l *Logger) Append(rec events.Record) {
	l.mu.Lock()
	var err error
	if l.sink != nil {
		err = l.sink.WriteEvent(rec)
	}
	l.mu.Unlock()

	l.count.Add(1)
	if err != nil {
		l.failures.Add(1)
		l.diag.Error("event sink write failed", "client_id", rec.ClientID, "event", rec.Kind, "err", err)
	}
	l.diag.Debug(rec.String())
	l.publish(rec)
}

// Count returns how many records were appended.
func (l *Logger) Count() int64 { return l.count.Load() }

// Failures returns how many appends the sink rejected.
func (l *Logger) Failures() int64 { return l.failures.Load() }

// Subscribe returns a channel receiving every record appended from now on and a
// function to stop the subscription. Slow subscribers lose records rather than
// blocking devices.
func (l *Logger) Subscribe() (<-chan events.Record, func()) {
	ch := make(chan events.Record, subscriberBuffer)
	l.subMu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	l.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.subMu.Lock()
			delete(l.subs, id)
			l.subMu.Unlock()
			close(ch)
		})
	}
}

func (l *Logger) publish(rec events.Record) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}
