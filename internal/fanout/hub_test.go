package fanout

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	srv := NewServer(0, NewHub())

	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	return srv, wsURL
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func TestHub_WelcomeOnConnect(t *testing.T) {
	_, wsURL := newTestServer(t)

	conn := dial(t, wsURL)
	frame := readFrame(t, conn)

	assert.Equal(t, TypeWelcome, frame["type"])
	assert.Equal(t, float64(1), frame["clientCount"])
	assert.NotEmpty(t, frame["timestamp"])
}

func TestHub_PingPong(t *testing.T) {
	_, wsURL := newTestServer(t)

	conn := dial(t, wsURL)
	readFrame(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	frame := readFrame(t, conn)
	assert.Equal(t, TypePong, frame["type"])
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	srv, wsURL := newTestServer(t)

	c1 := dial(t, wsURL)
	readFrame(t, c1)
	c2 := dial(t, wsURL)
	readFrame(t, c2)

	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	sent, failed := srv.Hub().Broadcast(NewRoundLock(123))
	assert.Equal(t, 2, sent)
	assert.Equal(t, 0, failed)

	for _, conn := range []*websocket.Conn{c1, c2} {
		frame := readFrame(t, conn)
		assert.Equal(t, TypeRoundLock, frame["type"])
		assert.Equal(t, float64(123), frame["epoch"])
	}
}

func TestHub_BroadcastPrunesDeadClients(t *testing.T) {
	srv, wsURL := newTestServer(t)

	c1 := dial(t, wsURL)
	readFrame(t, c1)
	c2 := dial(t, wsURL)
	readFrame(t, c2)

	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, c2.Close())
	// The read loop notices the close and unregisters; broadcasts from then
	// on only reach the surviving client.
	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	sent, _ := srv.Hub().Broadcast(NewConnectionStatus(true))
	assert.Equal(t, 1, sent)

	frame := readFrame(t, c1)
	assert.Equal(t, TypeConnectionStatus, frame["type"])
	assert.Equal(t, true, frame["connected"])
}

func TestServer_Health(t *testing.T) {
	srv, wsURL := newTestServer(t)

	conn := dial(t, wsURL)
	readFrame(t, conn)

	httpURL := "http" + strings.TrimPrefix(strings.TrimSuffix(wsURL, "/ws"), "ws") + "/health"
	resp, err := http.Get(httpURL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(srv.Hub().ClientCount()), body["clients"])
}

func TestNewBetMessageShape(t *testing.T) {
	msg := NewBet{
		Type:       TypeNewBet,
		Wallet:     "0xabc",
		Epoch:      100,
		Direction:  "UP",
		Amount:     "2.5",
		Timestamp:  "2026-08-25 12:00:00",
		Suspicious: false,
	}

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	// flags is omitted when empty so clean bets stay compact
	assert.NotContains(t, string(raw), "flags")
	assert.Contains(t, string(raw), `"amount":"2.5"`)
}
