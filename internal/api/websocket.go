package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mescon/Linkarr/internal/domain"
	"github.com/mescon/Linkarr/internal/eventbus"
	"github.com/mescon/Linkarr/internal/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Same-origin only: no Origin header means a non-browser client.
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return strings.Contains(origin, r.Host)
	},
}

// WebSocketHub fans pipeline events and log lines out to connected clients.
type WebSocketHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan interface{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.Mutex
	done       chan struct{}
	logCh      chan logger.LogEntry
}

func NewWebSocketHub(bus eventbus.Publisher) *WebSocketHub {
	h := &WebSocketHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan interface{}, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}

	types := []domain.EventType{
		domain.FileDetected,
		domain.FileLinked,
		domain.FileUpgraded,
		domain.FileSkipped,
		domain.ParseFailed,
		domain.PlacementFailed,
		domain.RetryScheduled,
		domain.PathAbandoned,
		domain.ScanStarted,
		domain.ScanCompleted,
		domain.JanitorStarted,
		domain.JanitorCompleted,
	}
	for _, t := range types {
		bus.Subscribe(t, func(e domain.Event) {
			h.offer(map[string]interface{}{"type": "event", "data": e})
		})
	}

	h.logCh = logger.Subscribe()
	go func() {
		for entry := range h.logCh {
			h.offer(map[string]interface{}{"type": "log", "data": entry})
		}
	}()

	go h.run()
	return h
}

// offer enqueues a message without ever blocking the caller.
func (h *WebSocketHub) offer(msg interface{}) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

func (h *WebSocketHub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
			}
			h.clients = make(map[*websocket.Conn]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			logger.Debugf("WebSocket client connected (total: %d)", len(h.clients))
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := client.WriteJSON(msg); err != nil {
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mu.Unlock()
		}
	}
}

// HandleWebSocket upgrades the connection and keeps it registered until the
// client goes away.
func (h *WebSocketHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	h.register <- conn

	// Reads are discarded; the socket is one-way. The read loop exists to
	// detect disconnects and answer control frames.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Shutdown closes all client connections and stops the hub.
func (h *WebSocketHub) Shutdown() {
	close(h.done)
	logger.Unsubscribe(h.logCh)
}
