package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/OldStager01/cloud-vm-monitor/api/middleware"
	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
)

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string

	mu   sync.RWMutex
	vmID string
}

type IncomingMessage struct {
	Type string `json:"type"`
	VMID string `json:"vm_id,omitempty"`
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, vmID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, hub.settings.ClientBuffer),
		userID: userID,
		vmID:   vmID,
	}
}

// wants reports whether a message for userID and vmID reaches this client.
// A client filtered to one VM still receives messages that name no VM.
func (c *Client) wants(userID, vmID string) bool {
	if userID != "" && userID != c.userID {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vmID == "" || vmID == "" || vmID == c.vmID
}

func (c *Client) subscription() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vmID
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	s := c.hub.settings
	c.conn.SetReadLimit(s.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithUser(c.userID).Errorf("WebSocket error: %v", err)
			}
			return
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			c.handleMessage(&msg)
		}
	}
}

func (c *Client) WritePump() {
	s := c.hub.settings
	ticker := time.NewTicker(s.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *IncomingMessage) {
	switch msg.Type {
	case "subscribe":
		if msg.VMID == "" {
			return
		}
		c.mu.Lock()
		c.vmID = msg.VMID
		c.mu.Unlock()
		c.confirm("subscribed", msg.VMID)
	case "unsubscribe":
		c.mu.Lock()
		previous := c.vmID
		c.vmID = ""
		c.mu.Unlock()
		c.confirm("unsubscribed", previous)
	}
}

func (c *Client) confirm(action, vmID string) {
	data, err := json.Marshal(SubscriptionUpdate{
		Type:      MessageTypeSubscription,
		Action:    action,
		VMID:      vmID,
		Timestamp: time.Now(),
	})
	if err != nil {
		logger.Errorf("Failed to marshal confirmation: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		logger.WithUser(c.userID).Warn("Client send channel full, dropping confirmation")
	}
}

// ServeWebSocket upgrades an authenticated request. The optional vm_id query
// parameter narrows the stream to one VM.
func ServeWebSocket(hub *Hub, allowedOrigins []string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  hub.settings.ReadBufferSize,
		WriteBufferSize: hub.settings.WriteBufferSize,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Errorf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(hub, conn, userID, c.Query("vm_id"))
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
