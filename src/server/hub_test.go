package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-observer/src/logger"
	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeAggregator struct{}

func (fakeAggregator) Compute(ctx context.Context, mint string) *models.MAggregationResponse {
	if strings.Contains(mint, "!") {
		return &models.MAggregationResponse{Mint: mint, Error: "invalid mint address"}
	}
	return &models.MAggregationResponse{Mint: mint, SuccessRate: 1.0, Timestamp: time.Now()}
}

type fakeTracker struct {
	mu      sync.Mutex
	tracked []string
	fail    bool
}

func (f *fakeTracker) TrackToken(ctx context.Context, mint string, maxAccounts int) error {
	if f.fail {
		return context.DeadlineExceeded
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = append(f.tracked, mint)
	return nil
}

func (f *fakeTracker) UntrackToken(mint string) {}

func (f *fakeTracker) TrackedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tracked...)
}

// -----------------------------------------------------------------------------

func newTestServer(t *testing.T, tracker *fakeTracker) *TokenServer {
	t.Helper()

	cfg := &models.MConfig{Name: "test", Host: "127.0.0.1", Port: 0, LogLevel: "error"}
	cfg.Tracking.MaxAccountsDefault = 10

	s := NewTokenServer(cfg, fakeAggregator{}, tracker, logger.NewLogger("error", "server-test"))
	go s.handleWebsockets()
	t.Cleanup(func() { s.Stop() })
	return s
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readTyped(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func msgType(t *testing.T, msg map[string]json.RawMessage) string {
	t.Helper()
	var typ string
	require.NoError(t, json.Unmarshal(msg["type"], &typ))
	return typ
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestValidateTrackCommand(t *testing.T) {
	valid := &models.MTrackCommand{Command: "track", Mint: "mintA", MaxAccounts: 10}
	assert.NoError(t, validateTrackCommand(valid))

	cases := []models.MTrackCommand{
		{Command: "track", Mint: "", MaxAccounts: 10},
		{Command: "track", Mint: "mintA", MaxAccounts: 1},
		{Command: "track", Mint: "mintA", MaxAccounts: 0},
		{Command: "track", Mint: "mintA", MaxAccounts: -3},
		{Command: "track", Mint: "mintA", MaxAccounts: 16},
	}
	for _, cmd := range cases {
		assert.Error(t, validateTrackCommand(&cmd), "max_accounts=%d mint=%q", cmd.MaxAccounts, cmd.Mint)
	}

	edge := &models.MTrackCommand{Command: "track", Mint: "mintA", MaxAccounts: 15}
	assert.NoError(t, validateTrackCommand(edge))
	edge.MaxAccounts = 2
	assert.NoError(t, validateTrackCommand(edge))
}

func TestClientReceivesSnapshotOnConnect(t *testing.T) {
	s := newTestServer(t, &fakeTracker{})
	s.UpdateSnapshot("mintS", &models.MAggregationResponse{Mint: "mintS", SuccessRate: 1.0})

	ts := httptest.NewServer(s.engine)
	defer ts.Close()

	conn := dialWS(t, ts)
	msg := readTyped(t, conn)
	assert.Equal(t, "INITIAL", msgType(t, msg))

	var tokens map[string]*models.MAggregationResponse
	require.NoError(t, json.Unmarshal(msg["tokens"], &tokens))
	assert.Contains(t, tokens, "mintS")
}

func TestTrackCommandConfirmed(t *testing.T) {
	tracker := &fakeTracker{}
	s := newTestServer(t, tracker)

	ts := httptest.NewServer(s.engine)
	defer ts.Close()

	conn := dialWS(t, ts)
	readTyped(t, conn) // initial snapshot

	require.NoError(t, conn.WriteJSON(models.MTrackCommand{Command: "track", Mint: "mintT", MaxAccounts: 5}))

	// Snapshot refresh first, then the confirmation.
	snapshot := readTyped(t, conn)
	assert.Equal(t, "INITIAL", msgType(t, snapshot))

	confirm := readTyped(t, conn)
	assert.Equal(t, "TRACKING", msgType(t, confirm))
	assert.Equal(t, []string{"mintT"}, tracker.TrackedTokens())
}

func TestInvalidBoundRejectedAndClosed(t *testing.T) {
	s := newTestServer(t, &fakeTracker{})

	ts := httptest.NewServer(s.engine)
	defer ts.Close()

	conn := dialWS(t, ts)
	readTyped(t, conn) // initial snapshot

	require.NoError(t, conn.WriteJSON(models.MTrackCommand{Command: "track", Mint: "mintT", MaxAccounts: 30}))

	msg := readTyped(t, conn)
	assert.Equal(t, "ERROR", msgType(t, msg))

	var code string
	require.NoError(t, json.Unmarshal(msg["code"], &code))
	assert.Equal(t, "INVALID_COMMAND", code)

	// Server closes the connection after the rejection.
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestSlowClientDroppedOthersDelivered(t *testing.T) {
	s := newTestServer(t, &fakeTracker{})

	// Healthy clients have room for snapshot plus events, the slow one can
	// only hold its snapshot.
	healthy := make([]*Client, 9)
	for i := range healthy {
		healthy[i] = &Client{id: "healthy", hub: s, send: make(chan interface{}, 8)}
		s.register <- healthy[i]
	}
	slow := &Client{id: "slow", hub: s, send: make(chan interface{}, 1)}
	s.register <- slow

	s.Broadcast(&models.MUpdateEvent{Type: models.EventAccountUpdate, Mint: "mintB"})

	deadline := time.Now().Add(2 * time.Second)
	delivered := 0
	for _, c := range healthy {
		got := false
		for time.Now().Before(deadline) && !got {
			select {
			case msg := <-c.send:
				if _, ok := msg.(*models.MUpdateEvent); ok {
					got = true
				}
			default:
				time.Sleep(5 * time.Millisecond)
			}
		}
		if got {
			delivered++
		}
	}
	assert.Equal(t, 9, delivered)

	// The slow client was unregistered and its channel closed.
	waitClosed := func() bool {
		for {
			select {
			case _, ok := <-slow.send:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}
	deadline = time.Now().Add(2 * time.Second)
	closed := false
	for time.Now().Before(deadline) && !closed {
		closed = waitClosed()
		if !closed {
			time.Sleep(5 * time.Millisecond)
		}
	}
	assert.True(t, closed)

	s.stateMutex.RLock()
	_, stillThere := s.clients[slow]
	s.stateMutex.RUnlock()
	assert.False(t, stillThere)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeTracker{})

	ts := httptest.NewServer(s.engine)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}
