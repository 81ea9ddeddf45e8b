package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/services/runs"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Control surface is bound to localhost
	},
}

// WSMessage is the envelope of every message sent to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// StatusProvider supplies the snapshot sent to a client on connect
type StatusProvider interface {
	Status() runs.Snapshot
}

// WebSocketHandler streams run progress and state changes to connected clients
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	status           StatusProvider
	progressThrottle *rate.Limiter // nil = no throttling
	unsubscribe      []func()
}

// NewWebSocketHandler subscribes to run events. throttle <= 0 disables progress throttling.
func NewWebSocketHandler(eventService interfaces.EventService, status StatusProvider, throttle time.Duration, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:  logger,
		clients: make(map[*websocket.Conn]*sync.Mutex),
		status:  status,
	}

	if throttle > 0 {
		h.progressThrottle = rate.NewLimiter(rate.Every(throttle), 1)
	}

	if eventService != nil {
		h.subscribe(eventService)
	}

	return h
}

func (h *WebSocketHandler) subscribe(eventService interfaces.EventService) {
	if unsub, err := eventService.Subscribe(interfaces.EventRunProgress, func(ctx context.Context, event interfaces.Event) error {
		progress, ok := event.Payload.(runs.ProgressEvent)
		if !ok {
			h.logger.Warn().Msg("Invalid run progress event payload type")
			return nil
		}
		// Milestones and the final report of a pass are always delivered
		last := progress.Total > 0 && progress.Current == progress.Total
		if h.progressThrottle != nil && !progress.Milestone && !last && !h.progressThrottle.Allow() {
			return nil
		}
		h.broadcast("run_progress", progress)
		return nil
	}); err == nil {
		h.unsubscribe = append(h.unsubscribe, unsub)
	}

	if unsub, err := eventService.Subscribe(interfaces.EventRunState, func(ctx context.Context, event interfaces.Event) error {
		h.broadcast("run_state", event.Payload)
		return nil
	}); err == nil {
		h.unsubscribe = append(h.unsubscribe, unsub)
	}
}

// HandleWebSocket upgrades the connection, sends the current snapshot and keeps the client registered until it disconnects
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mutex := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = mutex
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	if h.status != nil {
		h.send(conn, mutex, "run_state", h.status.Status())
	}

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	// Read messages from client (keep connection alive)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, mutex *sync.Mutex, msgType string, payload interface{}) {
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", msgType).Msg("Failed to marshal WebSocket message")
		return
	}

	mutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Str("type", msgType).Msg("Failed to send message to client")
	}
}

func (h *WebSocketHandler) broadcast(msgType string, payload interface{}) {
	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn, mutex := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, mutex)
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		h.send(conn, mutexes[i], msgType, payload)
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes from run events and disconnects every client
func (h *WebSocketHandler) Close() {
	for _, unsub := range h.unsubscribe {
		unsub()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
}
