package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"eye-of-horus/internal/common"
	"eye-of-horus/internal/models"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
)

const heartbeatInterval = 5 * time.Second

// WebSocketHub manages active WebSocket connections and pushes run events.
type WebSocketHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stop       chan struct{}
	stopOnce   sync.Once
	mutex      sync.RWMutex
	logger     arbor.ILogger
	upgrader   websocket.Upgrader
}

// NewWebSocketHub creates a hub and starts its loop. allowedOrigins of "*"
// accepts any origin.
func NewWebSocketHub(logger arbor.ILogger, allowedOrigins []string) *WebSocketHub {
	hub := &WebSocketHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stop:       make(chan struct{}),
		logger:     logger,
	}
	hub.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(allowedOrigins, r.Header.Get("Origin"))
		},
	}
	go hub.run()
	return hub
}

func originAllowed(allowed []string, origin string) bool {
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

// run manages client connections and broadcasts
func (h *WebSocketHub) run() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			h.logger.Debug().Msg("WebSocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mutex.Unlock()
			h.logger.Debug().Msg("WebSocket client disconnected")

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(heartbeatInterval))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Warn().Err(err).Msg("Failed to send WebSocket message")
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()

		case <-ticker.C:
			h.SendStatus("online")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// SendStatus broadcasts a heartbeat to all clients.
func (h *WebSocketHub) SendStatus(status string) {
	h.Publish(models.EventStatus, map[string]interface{}{
		"status":  status,
		"version": common.GetVersion(),
	})
}

// Publish queues an event for every client. Events are dropped when the
// queue is full so request handling never blocks on slow subscribers.
func (h *WebSocketHub) Publish(eventType string, data interface{}) {
	msg, err := json.Marshal(models.Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("type", eventType).Msg("Failed to encode event")
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn().Str("type", eventType).Msg("Event queue full, dropping event")
	}
}

// Close disconnects every client and stops the hub loop.
func (h *WebSocketHub) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// WebSocketHandler handles WebSocket connection requests
func (h *WebSocketHub) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	select {
	case h.register <- conn:
	case <-h.stop:
		conn.Close()
		return
	}

	// Keep connection alive and handle messages
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.stop:
			}
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
