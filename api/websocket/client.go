package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/OldStager01/car-price-predictor/internal/logger"
	"github.com/OldStager01/car-price-predictor/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	mu    sync.RWMutex
	runID string
}

type IncomingMessage struct {
	Type  string `json:"type"`
	RunID string `json:"run_id,omitempty"`
}

func NewClient(hub *Hub, conn *websocket.Conn, runID string) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, hub.settings.ClientBuffer),
		runID: runID,
	}
}

func (c *Client) RunID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runID
}

func (c *Client) setRunID(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runID = runID
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	settings := c.hub.settings
	c.conn.SetReadLimit(settings.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(settings.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithError(err).Warn("WebSocket read failed")
			}
			break
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			c.handleMessage(&msg)
		}
	}
}

func (c *Client) WritePump() {
	settings := c.hub.settings
	ticker := time.NewTicker(settings.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(settings.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON message per frame so clients can decode frames directly.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(settings.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *IncomingMessage) {
	switch msg.Type {
	case "subscribe":
		if !models.IsUUID(msg.RunID) {
			c.queue(NewMessage(MessageTypeError, msg.RunID, map[string]string{"error": "run_id must be a UUID"}).JSON())
			return
		}
		c.setRunID(msg.RunID)
		c.queue(NewSubscriptionMessage("subscribed", msg.RunID).JSON())
	case "unsubscribe":
		old := c.RunID()
		c.setRunID("")
		c.queue(NewSubscriptionMessage("unsubscribed", old).JSON())
	}
}

// queue goes through the hub so it never races with the hub closing send.
func (c *Client) queue(data []byte) {
	c.hub.deliver(data, func(other *Client) bool { return other == c })
}

// ServeWebSocket upgrades the request; an optional run_id query parameter
// subscribes the connection straight away.
func ServeWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  hub.settings.ReadBufferSize,
		WriteBufferSize: hub.settings.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(c *gin.Context) {
		runID := c.Query("run_id")
		if runID != "" && !models.IsUUID(runID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "run_id must be a UUID"})
			return
		}
		if hub.Full() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many websocket connections"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.WithError(err).Warn("WebSocket upgrade failed")
			return
		}

		client := NewClient(hub, conn, runID)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
