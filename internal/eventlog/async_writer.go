package eventlog

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"quizload/internal/events"
)

var (
	// ErrQueueFull is returned when a record is dropped because the
	// background writer is too far behind.
	ErrQueueFull = errors.New("event queue full")
	// ErrWriterClosed is returned for records written after Close.
	ErrWriterClosed = errors.New("event writer closed")
)

// AsyncWriter queues records and hands them to next in batches from a single
// background goroutine, so a slow sink never holds up the Logger. Records keep
// their order. When the queue is full the record is dropped and ErrQueueFull
// returned.
type AsyncWriter struct {
	next  Writer
	queue chan events.Record
	batch int
	flush time.Duration
	log   *slog.Logger
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
}

// NewAsyncWriter starts the background writer. queue bounds buffered records,
// batch bounds records per write and flush is the longest a record waits for
// its batch to fill.
func NewAsyncWriter(next Writer, queue, batch int, flush time.Duration, log *slog.Logger) *AsyncWriter {
	if queue <= 0 {
		queue = 1
	}
	if batch <= 0 {
		batch = 1
	}
	if flush <= 0 {
		flush = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	w := &AsyncWriter{
		next:  next,
		queue: make(chan events.Record, queue),
		batch: batch,
		flush: flush,
		log:   log,
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

// WriteEvent enqueues rec without waiting for the sink.
func (w *AsyncWriter) WriteEvent(rec events.Record) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	select {
	case w.queue <- rec:
		return nil
	default:
		w.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped returns how many records were rejected because the queue was full.
func (w *AsyncWriter) Dropped() int64 { return w.dropped.Load() }

// Close writes out everything queued, then closes next if it is an io.Closer.
func (w *AsyncWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	<-w.done
	if n := w.dropped.Load(); n > 0 {
		w.log.Warn("event records dropped by slow sink", "dropped", n)
	}
	if c, ok := w.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (w *AsyncWriter) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.flush)
	defer ticker.Stop()

	buf := make([]events.Record, 0, w.batch)
	for {
		select {
		case rec, ok := <-w.queue:
			if !ok {
				w.write(buf)
				return
			}
			buf = append(buf, rec)
			if len(buf) >= w.batch {
				w.write(buf)
				buf = buf[:0]
			}
		case <-ticker.C:
			w.write(buf)
			buf = buf[:0]
		}
	}
}

func (w *AsyncWriter) write(recs []events.Record) {
	if len(recs) == 0 {
		return
	}
	if bw, ok := w.next.(batchWriter); ok {
		if err := bw.WriteEvents(recs); err != nil {
			w.log.Error("event sink batch write failed", "records", len(recs), "err", err)
		}
		return
	}
	for _, rec := range recs {
		if err := w.next.WriteEvent(rec); err != nil {
			w.log.Error("event sink write failed", "client_id", rec.ClientID, "event", rec.Kind, "err", err)
		}
	}
}
