package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/tesseract-hub/platform-health-monitor/internal/config"
	"github.com/tesseract-hub/platform-health-monitor/internal/models"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeConnected MessageType = "connected"
	MessageTypeStatus    MessageType = "status"
	MessageTypePong      MessageType = "pong"
	MessageTypeError     MessageType = "error"
)

// OutgoingMessage represents a message sent to clients. Monitor events are
// forwarded with their event type.
type OutgoingMessage struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// IncomingMessage represents a message received from clients
type IncomingMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ConnectedData represents the data sent on connection
type ConnectedData struct {
	ClientID string `json:"clientId"`
	Message  string `json:"message"`
}

// ErrorData represents error message data
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusProvider supplies the snapshot sent on connect and on request
type StatusProvider interface {
	CurrentStatus() models.StatusResponse
}

// Hub manages all dashboard WebSocket connections
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client

	shutdown     chan struct{}
	shutdownOnce sync.Once

	status StatusProvider
	cfg    config.WebSocketConfig
}

// NewHub creates a new Hub instance
func NewHub(status StatusProvider, cfg config.WebSocketConfig) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = cfg.PingInterval + cfg.PingInterval/2
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		shutdown:   make(chan struct{}),
		status:     status,
		cfg:        cfg,
	}
}

// Run starts the hub's main loop, forwarding every monitor event to all
// connected clients until Shutdown is called or events is closed.
func (h *Hub) Run(events <-chan models.Event) {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case event, ok := <-events:
			if !ok {
				h.closeAllClients()
				return
			}
			h.broadcast(&OutgoingMessage{
				Type:      MessageType(event.Type),
				Data:      event.Data,
				Timestamp: event.Timestamp,
			})
		case <-h.shutdown:
			h.closeAllClients()
			return
		}
	}
}

// Shutdown gracefully shuts down the hub
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdown) })
}

// Serve registers a new client for conn and starts its pumps
func (h *Hub) Serve(conn *websocket.Conn) *Client {
	client := NewClient(h, conn)
	if !h.Register(client) {
		conn.Close()
		return client
	}
	go client.WritePump()
	go client.ReadPump()
	return client
}

// Register adds a client to the hub. It returns false after shutdown.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.shutdown:
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.shutdown:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	log.WithField("client", client.ID).Info("WebSocket client connected")

	client.SendMessage(&OutgoingMessage{
		Type: MessageTypeConnected,
		Data: ConnectedData{
			ClientID: client.ID,
			Message:  "Connected to platform health stream",
		},
		Timestamp: time.Now().UTC(),
	})
	h.sendStatus(client)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		client.closeSend()
		log.WithField("client", client.ID).Info("WebSocket client disconnected")
	}
}

func (h *Hub) broadcast(msg *OutgoingMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		client.SendMessage(msg)
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		client.closeSend()
		delete(h.clients, id)
	}
}

func (h *Hub) sendStatus(client *Client) {
	if h.status == nil {
		return
	}
	client.SendMessage(&OutgoingMessage{
		Type:      MessageTypeStatus,
		Data:      h.status.CurrentStatus(),
		Timestamp: time.Now().UTC(),
	})
}
