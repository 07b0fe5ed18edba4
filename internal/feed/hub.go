package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cashwatch/internal/logger"
)

// Event is one detection outcome pushed to feed subscribers.
type Event struct {
	Camera     string    `json:"camera"`
	Label      string    `json:"label"`
	Confidence float32   `json:"confidence"`
	Triggered  bool      `json:"triggered"`
	Time       time.Time `json:"time"`
}

// Hub fans detection events out to connected websocket clients.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *logger.Logger
}

// NewHub creates a Hub. Run must be started before clients connect.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log,
	}
}

// Run processes registrations and broadcasts until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Feed client connected. Total: %d", count)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Feed client disconnected. Total: %d", count)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Error("Error sending feed event: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Publish queues evt for broadcast. When the feed is backed up the event is
// dropped; the poll loop must never block on subscribers.
func (h *Hub) Publish(evt Event) {
	message, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("Error encoding feed event: %v", err)
		return
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warning("Feed backed up, dropping event for camera %s", evt.Camera)
	}
}

// ServeWS upgrades an HTTP request to a websocket subscription and holds it
// open until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Feed upgrade failed: %v", err)
		return
	}

	h.register <- conn

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.unregister <- conn
			return
		}
	}
}

// Serve exposes the feed on addr under /ws. Blocks until the listener fails.
func (h *Hub) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	return http.ListenAndServe(addr, mux)
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Nop is a publisher for when the feed is disabled.
type Nop struct{}

// Publish discards the event.
func (Nop) Publish(evt Event) {}
