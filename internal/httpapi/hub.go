package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hybscloud/spiral/pkg/efflog"
	"github.com/hybscloud/spiral/pkg/logging"
)

// client is one connected WebSocket subscriber, optionally scoped to a
// single execution id (the run whose effect-log entries it wants).
type client struct {
	id          string
	executionID string
	conn        *websocket.Conn
	send        chan []byte
}

// Hub fans out evaluation trace events to subscribed WebSocket clients,
// the same register/unregister/broadcast channel shape as the teacher's
// observer.WebSocketHub, generalized from generic workflow events to
// pkg/efflog entries keyed by execution id.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	broadcast  chan executionEvent
	register   chan *client
	unregister chan *client
	logger     *logging.Logger
}

type executionEvent struct {
	executionID string
	payload     []byte
}

func NewHub(log *logging.Logger) *Hub {
	h := &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan executionEvent, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     log,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case ev := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.executionID != "" && c.executionID != ev.executionID {
					continue
				}
				select {
				case c.send <- ev.payload:
				default:
					h.logger.Warn("websocket client too slow, dropping", "client_id", c.id)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ClientCount reports how many clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishEffect fans out one effect-log entry to every client subscribed
// to executionID, and to every unscoped client (one with no execution id).
func (h *Hub) PublishEffect(executionID string, entry efflog.Entry) {
	raw, err := json.Marshal(map[string]any{
		"type":      "effect",
		"seq":       entry.SeqNum,
		"task_id":   entry.TaskID,
		"op":        entry.Op,
		"timestamp": entry.Timestamp,
	})
	if err != nil {
		h.logger.Warn("websocket: failed to marshal effect entry", "error", err)
		return
	}
	select {
	case h.broadcast <- executionEvent{executionID: executionID, payload: raw}:
	default:
		h.logger.Warn("websocket: broadcast channel full, dropping event", "execution_id", executionID)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeExecutionStream upgrades the request to a WebSocket and streams
// h's effect/trace events for the named execution id until the client
// disconnects, mirroring the teacher's WebSocketHandler.ServeHTTP.
func (h *Hub) ServeExecutionStream(w http.ResponseWriter, r *http.Request, executionID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		id:          uuid.NewString(),
		executionID: executionID,
		conn:        conn,
		send:        make(chan []byte, 64),
	}
	h.register <- c

	welcome, _ := json.Marshal(map[string]any{
		"type":         "control",
		"message":      "connected to spiral execution stream",
		"client_id":    c.id,
		"execution_id": c.executionID,
		"timestamp":    time.Now(),
	})
	c.send <- welcome

	go h.writePump(c)
	h.readPump(c)
	return nil
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump discards any client-sent frames (the protocol is
// server-push-only) and exists only to detect disconnects.
func (h *Hub) readPump(c *client) {
	defer func() { h.unregister <- c }()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
