package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quizload/internal/eventlog"
	"quizload/internal/events"
	"quizload/internal/logging"
)

type stubSource struct{}

func (stubSource) Snapshot() map[string]int {
	return map[string]int{"AwaitingAuth": 2, "Terminated": 1}
}

func (stubSource) Progress() (int, int, int) { return 3, 1, 5 }

func newTestServer() (*Server, *eventlog.Logger) {
	l := eventlog.NewLogger(nil, logging.Discard())
	return NewServer(stubSource{}, l, logging.Discard()), l
}

func TestHandleStatus(t *testing.T) {
	s, l := newTestServer()
	l.Record("c1", events.Connected, "")

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v", w.Code)
	}
	var st Status
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.States["AwaitingAuth"] != 2 || st.Spawned != 3 || st.Total != 5 || st.Records != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestHandleIndexAndHealth(t *testing.T) {
	s, _ := newTestServer()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "AwaitingAuth") {
		t.Fatalf("index did not render states: %d", w.Code)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown path = %d", w.Code)
	}
}

func TestEventsWebsocket(t *testing.T) {
	s, l := newTestServer()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	// the subscription is registered after the upgrade; retry until it is live
	deadline := time.Now().Add(2 * time.Second)
	ws.SetReadDeadline(deadline)
	got := make(chan events.Record, 1)
	go func() {
		var rec events.Record
		if err := ws.ReadJSON(&rec); err == nil {
			got <- rec
		}
	}()
	for time.Now().Before(deadline) {
		l.Record("SIMMAC0000_abcdef", events.Authenticated, "")
		select {
		case rec := <-got:
			if rec.ClientID != "SIMMAC0000_abcdef" || rec.Kind != events.Authenticated {
				t.Fatalf("unexpected record %+v", rec)
			}
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatalf("no record received over websocket")
}
