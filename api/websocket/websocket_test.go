package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/car-price-predictor/internal/events"
	"github.com/OldStager01/car-price-predictor/pkg/config"
	"github.com/OldStager01/car-price-predictor/pkg/models"
)

type harness struct {
	hub    *Hub
	bus    *events.EventBus
	server *httptest.Server
}

func newHarness(t *testing.T, cfg *config.WebSocketConfig) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(cfg)
	go hub.Run()

	bus := events.NewEventBus(100)
	bridge := NewEventBridge(hub, bus.SubscribeAll())
	bridge.Start()

	r := gin.New()
	r.GET("/ws", ServeWebSocket(hub))
	server := httptest.NewServer(r)

	t.Cleanup(func() {
		server.Close()
		bridge.Stop()
		bus.Close()
		hub.Stop()
	})

	return &harness{hub: hub, bus: bus, server: server}
}

func (h *harness) dial(t *testing.T, query string) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws" + query
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *gorilla.Conn) OutgoingMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg OutgoingMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocket_RunSubscription(t *testing.T) {
	h := newHarness(t, nil)
	runID := models.NewUUID()

	follower := h.dial(t, "?run_id="+runID)
	other := h.dial(t, "?run_id="+models.NewUUID())
	require.Eventually(t, func() bool { return h.hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	events.NewPublisher(h.bus).BatchStarted(runID, 3)

	msg := readMessage(t, follower)
	assert.Equal(t, MessageTypeBatchStarted, msg.Type)
	assert.Equal(t, runID, msg.RunID)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "clients following another run receive nothing")
}

func TestWebSocket_SubscribeMessage(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.dial(t, "")
	require.Eventually(t, func() bool { return h.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(IncomingMessage{Type: "subscribe", RunID: "nope"}))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)

	runID := models.NewUUID()
	require.NoError(t, conn.WriteJSON(IncomingMessage{Type: "subscribe", RunID: runID}))
	confirm := readMessage(t, conn)
	assert.Equal(t, MessageTypeSubscription, confirm.Type)
	assert.Equal(t, runID, confirm.RunID)

	run := models.NewPredictionRun(models.RunKindBatch)
	run.ID = runID
	run.Status = models.RunStatusSucceeded
	events.NewPublisher(h.bus).BatchCompleted(run)

	assert.Equal(t, MessageTypeBatchCompleted, readMessage(t, conn).Type)
}

func TestWebSocket_GlobalEventsReachEveryone(t *testing.T) {
	h := newHarness(t, nil)
	a := h.dial(t, "")
	b := h.dial(t, "?run_id="+models.NewUUID())
	require.Eventually(t, func() bool { return h.hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	events.NewPublisher(h.bus).OracleStateChanged("closed", "open")

	assert.Equal(t, MessageTypeOracleState, readMessage(t, a).Type)
	assert.Equal(t, MessageTypeOracleState, readMessage(t, b).Type)
}

func TestServeWebSocket_Rejections(t *testing.T) {
	h := newHarness(t, &config.WebSocketConfig{MaxConnections: 1})

	resp, err := http.Get(h.server.URL + "/ws?run_id=bad")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	h.dial(t, "")
	require.Eventually(t, func() bool { return h.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"
	_, resp, err = gorilla.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocketSettings(t *testing.T) {
	s := NewWebSocketSettings(nil)
	assert.Equal(t, defaultPongWait*9/10, s.PingPeriod)

	s = NewWebSocketSettings(&config.WebSocketConfig{PingInterval: 5 * time.Second, PongTimeout: 20 * time.Second, ClientBuffer: 8})
	assert.Equal(t, 5*time.Second, s.PingPeriod)
	assert.Equal(t, 20*time.Second, s.PongWait)
	assert.Equal(t, 8, s.ClientBuffer)

	s = NewWebSocketSettings(&config.WebSocketConfig{PingInterval: time.Minute, PongTimeout: 10 * time.Second})
	assert.Equal(t, 9*time.Second, s.PingPeriod, "ping interval longer than pong wait is ignored")
}
