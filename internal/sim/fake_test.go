package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"quizload/internal/broker"
	"quizload/internal/eventlog"
	"quizload/internal/events"
	"quizload/internal/logging"
	"quizload/internal/quiz"
)

// memWriter keeps every record in memory. onWrite, when set, sees each record
// as it is written.
type memWriter struct {
	mu      sync.Mutex
	recs    []events.Record
	onWrite func(events.Record)
}

func (m *memWriter) WriteEvent(r events.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	if m.onWrite != nil {
		m.onWrite(r)
	}
	return nil
}

func (m *memWriter) kinds(clientID string) []events.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.Kind
	for _, r := range m.recs {
		if r.ClientID == clientID {
			out = append(out, r.Kind)
		}
	}
	return out
}

func (m *memWriter) find(clientID string, kind events.Kind) []events.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.Record
	for _, r := range m.recs {
		if r.ClientID == clientID && r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

type fakeConn struct {
	d        *fakeDialer
	clientID string

	mu        sync.Mutex
	handlers  map[string]broker.Handler
	published []broker.Message
	closed    bool
	joined    chan struct{}
	joinOnce  sync.Once
}

func (c *fakeConn) Subscribe(topic string, _ byte, h broker.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = h
	return nil
}

func (c *fakeConn) Publish(topic string, _ byte, payload []byte) error {
	c.mu.Lock()
	c.published = append(c.published, broker.Message{Topic: topic, Payload: payload})
	c.mu.Unlock()
	if topic == broker.TopicSessionJoin {
		c.joinOnce.Do(func() { close(c.joined) })
	}
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.d.open.Add(-1)
	}
}

// deliver hands payload to the handler subscribed on topic, if any.
func (c *fakeConn) deliver(topic, payload string) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()
	if h != nil {
		h(broker.Message{Topic: topic, Payload: []byte(payload)})
	}
}

func (c *fakeConn) publishedOn(topic string) []broker.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []broker.Message
	for _, m := range c.published {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) waitJoined(t *testing.T) {
	t.Helper()
	select {
	case <-c.joined:
	case <-time.After(2 * time.Second):
		t.Fatalf("device %s never published its join request", c.clientID)
	}
}

type counter struct {
	mu       sync.Mutex
	cur, max int
}

func (c *counter) Add(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur += n
	if c.cur > c.max {
		c.max = c.cur
	}
}

func (c *counter) Max() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.max
}

// fakeDialer connects every device in memory. With neverConnect set the
// session is never established. script, when set, runs after the device has
// joined.
type fakeDialer struct {
	neverConnect bool
	script       func(c *fakeConn)

	mu    sync.Mutex
	conns map[string]*fakeConn
	open  counter
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: map[string]*fakeConn{}}
}

func (d *fakeDialer) Dial(ctx context.Context, opts broker.Options, onConnect func(broker.Conn)) (broker.Conn, error) {
	c := &fakeConn{d: d, clientID: opts.ClientID, handlers: map[string]broker.Handler{}, joined: make(chan struct{})}
	d.mu.Lock()
	d.conns[opts.ClientID] = c
	d.mu.Unlock()
	d.open.Add(1)
	if !d.neverConnect {
		go func() {
			onConnect(c)
			if d.script != nil {
				d.script(c)
			}
		}()
	}
	return c, nil
}

func (d *fakeDialer) conn(clientID string) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[clientID]
}

func fastTiming() Timing {
	return Timing{
		AuthTimeout:     200 * time.Millisecond,
		StartTimeout:    200 * time.Millisecond,
		QuestionTimeout: 200 * time.Millisecond,
		JitterMin:       time.Millisecond,
		JitterMax:       5 * time.Millisecond,
		Linger:          10 * time.Millisecond,
	}
}

func newTestEnv(d broker.Dialer) (Env, *memWriter) {
	mem := &memWriter{}
	log := logging.Discard()
	return Env{
		Dialer:  d,
		Events:  eventlog.NewLogger(mem, log),
		Log:     log,
		Session: quiz.Join{SessionID: "session-1", Auth: "secret"},
		Timing:  fastTiming(),
	}, mem
}

// playQuiz sends the messages a healthy quiz server would send.
func playQuiz(c *fakeConn) {
	c.deliver(broker.InfoTopic(c.clientID), `{"id":"`+c.clientID+`","authenticated":true,"authorized":true}`)
	c.deliver(broker.TopicSessionStart, `{}`)
	c.deliver(broker.TopicQuestion, `{"id":"q1","type":"single_select","options":[{"id":"a"},{"id":"b"},{"id":"c"}]}`)
}

var lifecycle = []events.Kind{
	events.Connected, events.Joined, events.Authenticated, events.SessionStarted,
	events.QuestionReceived, events.ResponseSent, events.Disconnected,
}

// checkSequence asserts kinds follow the lifecycle order, ignoring Error
// records, and end with at most one Timeout.
func checkSequence(t *testing.T, kinds []events.Kind) {
	t.Helper()
	next := 0
	for i, k := range kinds {
		switch k {
		case events.Error:
			continue
		case events.Timeout:
			if i != len(kinds)-1 {
				t.Fatalf("events after Timeout: %v", kinds)
			}
			continue
		}
		for next < len(lifecycle) && lifecycle[next] != k {
			next++
		}
		if next == len(lifecycle) {
			t.Fatalf("event %s out of order in %v", k, kinds)
		}
		next++
	}
}
