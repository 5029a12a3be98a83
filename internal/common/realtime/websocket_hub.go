package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// EventMessage is a single event for one planning request (the Orchestrator
// emits route_committed events). It is the wire shape broadcast over the
// WebSocket hub.
type EventMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id"`
}

// Client represents a WebSocket client subscribed to one planning request's
// progress stream.
type Client struct {
	ID        string
	RequestID string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *WebSocketHub
}

// WebSocketHub manages WebSocket connections, fanning out orchestrator
// events to whichever callers are watching a given planning request. This
// follows the teacher's websocket_hub.go structurally (register/unregister/
// broadcast channels, single run() goroutine, Redis pub/sub for
// cross-instance fanout, ping/pong keepalive in readPump/writePump) but
// subscriptions key on the planning request UUID instead of company ID,
// since this service has no tenant concept.
type WebSocketHub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	redis *redis.Client

	mutex sync.RWMutex

	config *WebSocketConfig
}

// WebSocketConfig holds WebSocket configuration.
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	PingPeriod      time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageSize  int64
}

// DefaultWebSocketConfig returns default WebSocket configuration.
func DefaultWebSocketConfig() *WebSocketConfig {
	return &WebSocketConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		PingPeriod:      54 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		MaxMessageSize:  512,
	}
}

// pubSubChannel is the Redis channel instances use to fan events out to
// every other instance's connected WebSocket clients.
const pubSubChannel = "routeplanner:progress"

// NewWebSocketHub creates a new WebSocket hub. redis may be nil, in which
// case cross-instance fanout is skipped and events only reach clients
// connected to this instance.
func NewWebSocketHub(redis *redis.Client, config *WebSocketConfig) *WebSocketHub {
	if config == nil {
		config = DefaultWebSocketConfig()
	}

	hub := &WebSocketHub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte),
		redis:      redis,
		config:     config,
	}

	go hub.run()
	if redis != nil {
		go hub.startRedisPubSub()
	}

	return hub
}

// run is the hub's single event loop.
func (h *WebSocketHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()

			client.sendMessage(EventMessage{
				Type:      "subscribed",
				Data:      map[string]string{"request_id": client.RequestID},
				Timestamp: time.Now(),
				RequestID: client.RequestID,
			})

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			var envelope EventMessage
			if err := json.Unmarshal(message, &envelope); err != nil {
				log.Printf("realtime: dropping malformed event: %v", err)
				continue
			}

			h.mutex.RLock()
			for client := range h.clients {
				if client.RequestID != envelope.RequestID {
					continue
				}
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// startRedisPubSub relays events published by other instances into this
// instance's broadcast channel.
func (h *WebSocketHub) startRedisPubSub() {
	pubsub := h.redis.Subscribe(context.Background(), pubSubChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for msg := range ch {
		h.broadcast <- []byte(msg.Payload)
	}
}

// HandleWebSocket upgrades the connection and subscribes the caller to one
// planning request's progress stream, identified by the requestID path
// param of the route that mounts it (internal/api.RegisterRoutes does not
// mount it).
func (h *WebSocketHub) HandleWebSocket(c *gin.Context) {
	requestID := c.Param("requestID")
	if requestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "requestID is required"})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  h.config.ReadBufferSize,
		WriteBufferSize: h.config.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to upgrade to WebSocket"})
		return
	}

	client := &Client{
		ID:        fmt.Sprintf("%s_%d", requestID, time.Now().UnixNano()),
		RequestID: requestID,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		Hub:       h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// Publish broadcasts an event for a planning request to this instance's
// connected clients, and to every other instance via Redis if configured.
// Its signature matches orchestrator.EventSink, so a hub can be passed
// to orchestrator.New as the event sink directly.
func (h *WebSocketHub) Publish(requestID, eventType string, data interface{}) {
	message := EventMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestID,
	}

	payload, err := json.Marshal(message)
	if err != nil {
		log.Printf("realtime: failed to marshal event: %v", err)
		return
	}

	if h.redis != nil {
		if err := h.redis.Publish(context.Background(), pubSubChannel, payload).Err(); err != nil {
			log.Printf("realtime: redis publish failed, falling back to local broadcast: %v", err)
			h.broadcast <- payload
		}
		return
	}

	h.broadcast <- payload
}

// ConnectedClients returns the number of connections currently subscribed
// to a planning request.
func (h *WebSocketHub) ConnectedClients(requestID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	count := 0
	for client := range h.clients {
		if client.RequestID == requestID {
			count++
		}
	}
	return count
}

// readPump pumps messages from the WebSocket connection to the hub. Clients
// never send application data on this stream — it exists only to detect
// disconnects and answer pings.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.Hub.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendMessage(message EventMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Failed to marshal message for client %s: %v", c.ID, err)
		return
	}

	select {
	case c.Send <- data:
	default:
		close(c.Send)
	}
}
