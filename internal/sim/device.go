// Device simulation driving one participant through the quiz protocol
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"quizload/internal/broker"
	"quizload/internal/config"
	"quizload/internal/eventlog"
	"quizload/internal/events"
	"quizload/internal/quiz"
)

// Timing holds the per-stage deadlines and deliberate pauses of a device.
type Timing struct {
	AuthTimeout     time.Duration
	StartTimeout    time.Duration
	QuestionTimeout time.Duration
	JitterMin       time.Duration
	JitterMax       time.Duration
	Linger          time.Duration
}

// TimingFromConfig copies the device timings out of cfg.
func TimingFromConfig(cfg config.Timing) Timing {
	return Timing{
		AuthTimeout:     cfg.AuthTimeout,
		StartTimeout:    cfg.StartTimeout,
		QuestionTimeout: cfg.QuestionTimeout,
		JitterMin:       cfg.JitterMin,
		JitterMax:       cfg.JitterMax,
		Linger:          cfg.Linger,
	}
}

// Env is shared by every device of a run.
type Env struct {
	Dialer  broker.Dialer
	Events  *eventlog.Logger
	Log     *slog.Logger
	Session quiz.Join
	Timing  Timing
}

type arrival struct {
	q  quiz.Question
	at time.Time
}

// Device is one simulated participant. A Device is run once.
type Device struct {
	cred     events.Credential
	clientID string
	env      Env
	log      *slog.Logger
	rng      *rand.Rand
	now      func() time.Time

	state atomic.Int32

	// mu orders event records between the transport and the device goroutine.
	mu   sync.Mutex
	done bool
	conn broker.Conn

	auth     *signal[struct{}]
	start    *signal[struct{}]
	question *signal[arrival]
}

// NewDevice prepares a device for cred using clientID on the broker.
func NewDevice(env Env, cred events.Credential, clientID string, rng *rand.Rand) *Device {
	if env.Log == nil {
		env.Log = slog.Default()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Device{
		cred:     cred,
		clientID: clientID,
		env:      env,
		log:      env.Log.With("client_id", clientID),
		rng:      rng,
		now:      time.Now,
		auth:     newSignal[struct{}](),
		start:    newSignal[struct{}](),
		question: newSignal[arrival](),
	}
}

// ClientID is the broker client ID of the device.
func (d *Device) ClientID() string { return d.clientID }

// State returns the current lifecycle state.
func (d *Device) State() State { return State(d.state.Load()) }

func (d *Device) setState(s State) { d.state.Store(int32(s)) }

// record appends an event. Callers hold d.mu.
func (d *Device) record(kind events.Kind, detail string) {
	d.env.Events.Record(d.clientID, kind, detail)
}

// advance records kind and moves to next unless the device already finished.
func (d *Device) advance(kind events.Kind, detail string, next State) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return false
	}
	d.record(kind, detail)
	d.setState(next)
	return true
}

func (d *Device) recordError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return
	}
	d.log.Warn("device error", "err", err)
	d.record(events.Error, err.Error())
}

// Run drives the device until it terminates. It never returns early for a
// failure of another device.
func (d *Device) Run(ctx context.Context) Outcome {
	t := d.env.Timing
	d.setState(Connecting)

	conn, err := d.env.Dialer.Dial(ctx, broker.Options{
		ClientID: d.clientID,
		Username: d.cred.Identifier,
		Password: d.cred.Password,
	}, d.onConnect)
	if err != nil {
		if ctx.Err() != nil {
			return d.abort(ctx.Err(), "")
		}
		// No session means no info message; the auth wait below times out.
		d.log.Warn("dial failed", "err", err)
	} else {
		d.mu.Lock()
		d.conn = conn
		d.mu.Unlock()
	}

	if _, err := d.auth.Wait(ctx, t.AuthTimeout); err != nil {
		return d.abort(err, events.AuthTimeout)
	}
	if !d.advance(events.Authenticated, "", AwaitingSessionStart) {
		return Cancelled
	}

	if _, err := d.start.Wait(ctx, t.StartTimeout); err != nil {
		return d.abort(err, events.QuizStartTimeout)
	}
	if !d.advance(events.SessionStarted, "", AwaitingQuestion) {
		return Cancelled
	}

	got, err := d.question.Wait(ctx, t.QuestionTimeout)
	if err != nil {
		return d.abort(err, events.QuestionTimeout)
	}
	if lat, ok := got.q.BroadcastLatency(got.at); ok {
		d.log.Info("question received", "question_id", got.q.ID, "latency", lat)
	}
	if !d.advance(events.QuestionReceived, got.q.ID, AwaitingQuestion) {
		return Cancelled
	}

	if err := sleep(ctx, d.jitter()); err != nil {
		return d.abort(err, "")
	}
	d.respond(got.q)

	d.setState(Linger)
	_ = sleep(ctx, t.Linger)
	d.disconnect()
	return Completed
}

func (d *Device) jitter() time.Duration {
	lo, hi := d.env.Timing.JitterMin, d.env.Timing.JitterMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(d.rng.Int63n(int64(hi-lo)+1))
}

func (d *Device) respond(q quiz.Question) {
	resp, err := quiz.BuildResponse(q, d.rng, d.now())
	if err != nil {
		d.recordError(err)
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		d.recordError(err)
		return
	}
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		d.recordError(errors.New("not connected"))
		return
	}
	if err := conn.Publish(broker.TopicResponse, broker.AtLeastOnce, payload); err != nil {
		d.recordError(err)
		return
	}
	d.advance(events.ResponseSent, string(payload), RespondingSent)
}

// abort ends the device after a failed wait. Deadline expiry records a single
// Timeout; cancellation records nothing.
func (d *Device) abort(err error, detail string) Outcome {
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return Cancelled
	}
	d.done = true
	timedOut := errors.Is(err, errWaitTimeout)
	if timedOut {
		d.log.Warn("device timed out", "stage", detail)
		d.record(events.Timeout, detail)
	}
	d.setState(Terminated)
	conn := d.conn
	d.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if timedOut {
		return TimedOut
	}
	return Cancelled
}

func (d *Device) disconnect() {
	d.mu.Lock()
	d.done = true
	conn := d.conn
	d.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	d.mu.Lock()
	d.record(events.Disconnected, "")
	d.setState(Terminated)
	d.mu.Unlock()
}

// onConnect runs on the transport goroutine once the broker session is up.
func (d *Device) onConnect(conn broker.Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return
	}
	d.conn = conn
	d.setState(AwaitingAuth)
	d.record(events.Connected, "")

	subs := []struct {
		topic string
		h     broker.Handler
	}{
		{broker.InfoTopic(d.clientID), d.handleInfo},
		{broker.TopicSessionStart, d.handleStart},
		{broker.TopicQuestion, d.handleQuestion},
	}
	for _, s := range subs {
		if err := conn.Subscribe(s.topic, broker.AtLeastOnce, s.h); err != nil {
			d.log.Warn("subscribe failed", "topic", s.topic, "err", err)
			d.record(events.Error, err.Error())
		}
	}

	payload, err := json.Marshal(d.env.Session)
	if err == nil {
		err = conn.Publish(broker.TopicSessionJoin, broker.AtLeastOnce, payload)
	}
	if err != nil {
		d.log.Warn("join failed", "err", err)
		d.record(events.Error, err.Error())
		return
	}
	d.record(events.Joined, "Sent join request")
}

// Decode errors are recorded even after a stage has fired; only the
// transition is first-wins.
func (d *Device) handleInfo(m broker.Message) {
	info, err := quiz.DecodeClientInfo(m.Payload)
	if err != nil {
		d.recordError(err)
		return
	}
	if info.Authenticated {
		d.auth.Fire(struct{}{})
	}
}

func (d *Device) handleStart(broker.Message) {
	d.start.Fire(struct{}{})
}

func (d *Device) handleQuestion(m broker.Message) {
	at := d.now()
	q, err := quiz.DecodeQuestion(m.Payload)
	if err != nil {
		d.recordError(err)
		return
	}
	d.question.Fire(arrival{q: q, at: at})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
