package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MJE43/idleforge/internal/runtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

// Message is the envelope for everything sent over a session stream.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub fans session snapshots out to websocket subscribers. It implements
// runtime.Emitter, routing each snapshot by session id.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[*client]struct{}
	logger      *log.Logger
	initial     func(sessionID string) (runtime.Snapshot, bool)
	upgrader    websocket.Upgrader
}

type client struct {
	hub     *Hub
	session string
	conn    *websocket.Conn
	send    chan []byte
}

// NewHub creates a hub. initial supplies the snapshot a new subscriber
// receives before any tick.
func NewHub(logger *log.Logger, initial func(string) (runtime.Snapshot, bool)) *Hub {
	return &Hub{
		subscribers: make(map[string]map[*client]struct{}),
		logger:      logger,
		initial:     initial,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// EmitSnapshot implements runtime.Emitter.
func (h *Hub) EmitSnapshot(snap runtime.Snapshot) {
	msg, err := json.Marshal(Message{Type: "snapshot", Payload: snap})
	if err != nil {
		h.logger.Printf("stream_encode_failed session=%s error=%v", snap.SessionID, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subscribers[snap.SessionID] {
		select {
		case c.send <- msg:
		default:
			// Slow consumer.
			h.removeLocked(c)
			h.logger.Printf("stream_dropped session=%s reason=buffer_full", snap.SessionID)
		}
	}
}

// Serve upgrades the request and subscribes it to a session.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("stream_upgrade_failed session=%s error=%v", sessionID, err)
		return
	}

	c := &client{hub: h, session: sessionID, conn: conn, send: make(chan []byte, sendBufferSize)}
	if snap, ok := h.initial(sessionID); ok {
		if msg, err := json.Marshal(Message{Type: "snapshot", Payload: snap}); err == nil {
			c.send <- msg
		}
	}

	h.mu.Lock()
	if h.subscribers[sessionID] == nil {
		h.subscribers[sessionID] = make(map[*client]struct{})
	}
	h.subscribers[sessionID][c] = struct{}{}
	count := len(h.subscribers[sessionID])
	h.mu.Unlock()

	h.logger.Printf("stream_connected session=%s subscribers=%d", sessionID, count)

	go c.writePump()
	go c.readPump()
}

// Subscribers returns the number of clients watching a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[sessionID])
}

// CloseSession disconnects every subscriber of a session.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subscribers[sessionID] {
		h.removeLocked(c)
	}
}

// Close disconnects everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subscribers {
		for c := range set {
			h.removeLocked(c)
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked forgets c and closes its send channel exactly once.
func (h *Hub) removeLocked(c *client) {
	set := h.subscribers[c.session]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.subscribers, c.session)
	}
	close(c.send)
}

// readPump discards client messages and notices disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Printf("stream_read_error session=%s error=%v", c.session, err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
