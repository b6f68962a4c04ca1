package eventlog

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"quizload/internal/events"
	"quizload/internal/logging"
)

type slowWriter struct {
	delay time.Duration

	mu   sync.Mutex
	recs []events.Record
}

func (s *slowWriter) WriteEvent(r events.Record) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, r)
	return nil
}

func (s *slowWriter) written() []events.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Record(nil), s.recs...)
}

type gatedWriter struct {
	gate chan struct{}
	n    int
}

func (g *gatedWriter) WriteEvent(events.Record) error {
	<-g.gate
	g.n++
	return nil
}

func TestAsyncWriterSlowSinkDoesNotBlockRecorders(t *testing.T) {
	slow := &slowWriter{delay: 100 * time.Millisecond}
	aw := NewAsyncWriter(slow, 64, 8, 10*time.Millisecond, logging.Discard())
	l := NewLogger(aw, logging.Discard())

	const devices = 20
	var wg sync.WaitGroup
	start := time.Now()
	for d := 0; d < devices; d++ {
		wg.Add(1)
		go func(d int) {
			defer wg.Done()
			l.Record(fmt.Sprintf("SIMMAC%04X_abcdef", d), events.Connected, "")
		}(d)
	}
	wg.Wait()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("recording %d events took %v behind a slow sink", devices, elapsed)
	}

	if err := aw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := len(slow.written()); got != devices {
		t.Fatalf("expected %d records after Close, got %d", devices, got)
	}
	if l.Failures() != 0 || aw.Dropped() != 0 {
		t.Fatalf("unexpected failures=%d dropped=%d", l.Failures(), aw.Dropped())
	}
}

func TestAsyncWriterKeepsOrder(t *testing.T) {
	cw := &collectWriter{}
	aw := NewAsyncWriter(cw, 16, 4, time.Millisecond, logging.Discard())
	for i := 0; i < 10; i++ {
		if err := aw.WriteEvent(events.Record{ClientID: "c1", Kind: events.Error, Detail: fmt.Sprint(i)}); err != nil {
			t.Fatalf("WriteEvent: %v", err)
		}
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(cw.recs) != 10 {
		t.Fatalf("expected 10 records, got %d", len(cw.recs))
	}
	for i, r := range cw.recs {
		if r.Detail != fmt.Sprint(i) {
			t.Fatalf("record %d out of order: %+v", i, r)
		}
	}
	if err := aw.WriteEvent(events.Record{ClientID: "c1"}); !errors.Is(err, ErrWriterClosed) {
		t.Fatalf("write after Close: %v", err)
	}
}

func TestAsyncWriterDropsWhenQueueFull(t *testing.T) {
	g := &gatedWriter{gate: make(chan struct{})}
	aw := NewAsyncWriter(g, 1, 1, time.Millisecond, logging.Discard())

	var full int
	for i := 0; i < 4; i++ {
		if err := aw.WriteEvent(events.Record{ClientID: "c1", Kind: events.Connected}); errors.Is(err, ErrQueueFull) {
			full++
		} else if err != nil {
			t.Fatalf("WriteEvent: %v", err)
		}
	}
	if full == 0 || aw.Dropped() != int64(full) {
		t.Fatalf("expected dropped records, full=%d dropped=%d", full, aw.Dropped())
	}

	close(g.gate)
	if err := aw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if g.n+full != 4 {
		t.Fatalf("written %d + dropped %d != 4", g.n, full)
	}
}
