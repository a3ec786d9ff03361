package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwebrtc/go-sip-webphone/pkg/utils"
	"github.com/cloudwebrtc/go-sip-webphone/pkg/widget"
	"github.com/ghettovoice/gosip/log"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = utils.NewLogrusLogger(log.DebugLevel, "web_test", nil)

type recorder struct {
	mu      sync.Mutex
	intents []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.intents...)
}

func (r *recorder) DialInput()           { r.add("call") }
func (r *recorder) DialEnter()           { r.add("enter") }
func (r *recorder) DialPreset(i int)     { r.add("phonebook") }
func (r *recorder) Answer()              { r.add("answer") }
func (r *recorder) Hangup()              { r.add("hangup") }
func (r *recorder) ToggleHold()          { r.add("hold") }
func (r *recorder) ToggleMute()          { r.add("mute") }
func (r *recorder) PressKey(tone string) { r.add("keypad:" + tone) }
func (r *recorder) BeforeUnload() string { return "leave?" }

func newTestServer(t *testing.T) (*Server, *recorder, *widget.Board) {
	t.Helper()
	board, _ := widget.NewPhoneBoard(widget.DefaultKeys, nil)
	rec := &recorder{}
	s := NewServer(Config{Gatherer: prometheus.NewRegistry()}, rec, board, logger)
	return s, rec, board
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestIndex(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/ws")
	assert.Contains(t, w.Body.String(), `fetch("/api/beforeunload")`)
}

func TestActions(t *testing.T) {
	s, rec, _ := newTestServer(t)

	for _, path := range []string{
		"/api/action/call", "/api/action/enter", "/api/action/answer", "/api/action/hangup",
		"/api/action/hold", "/api/action/mute", "/api/keypad/5", "/api/phonebook/0",
	} {
		assert.Equal(t, http.StatusAccepted, do(s, http.MethodPost, path, "").Code, path)
	}
	assert.Equal(t, []string{"call", "enter", "answer", "hangup", "hold", "mute", "keypad:5", "phonebook"}, rec.list())

	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/api/action/reboot", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/api/phonebook/x", "").Code)
}

func TestDialAndState(t *testing.T) {
	s, _, _ := newTestServer(t)

	assert.Equal(t, http.StatusAccepted, do(s, http.MethodPost, "/api/dial", `{"value":"1001"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/api/dial", `{`).Code)

	w := do(s, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap widget.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "1001", snap.Inputs[widget.DialInput])
}

func TestAlertsAndUnload(t *testing.T) {
	s, _, board := newTestServer(t)
	board.Alert("Failed to answer\ngone")

	w := do(s, http.MethodPost, "/api/alerts/take", "")
	assert.JSONEq(t, `{"alerts":["Failed to answer\ngone"]}`, w.Body.String())
	assert.Empty(t, board.Snapshot().Alerts)

	w = do(s, http.MethodGet, "/api/beforeunload", "")
	assert.JSONEq(t, `{"message":"leave?"}`, w.Body.String())
}

func TestMetrics(t *testing.T) {
	s, _, _ := newTestServer(t)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/metrics", "").Code)
}

func TestWebSocket(t *testing.T) {
	s, rec, board := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	defer ws.Close()

	var snap widget.Snapshot
	require.NoError(t, ws.ReadJSON(&snap))
	assert.Contains(t, snap.Plays, widget.DTMFTone)

	require.NoError(t, ws.WriteJSON(intent{Type: "dial", Value: "2002"}))
	require.NoError(t, ws.WriteJSON(intent{Type: "call"}))

	require.Eventually(t, func() bool {
		return len(rec.list()) == 1 && board.Snapshot().Inputs[widget.DialInput] == "2002"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(time.Second)))
	for snap.Inputs[widget.DialInput] != "2002" {
		require.NoError(t, ws.ReadJSON(&snap))
	}
}
