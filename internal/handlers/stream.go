package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/intersection-twin/internal/controller"
	"github.com/ukydev/intersection-twin/internal/db"
	"github.com/ukydev/intersection-twin/internal/models"
)

const (
	DefaultFrameInterval = 50 * time.Millisecond
	clientBuffer         = 64
	writeWait            = 5 * time.Second
)

// SnapshotSource produces render snapshots.
type SnapshotSource interface {
	UnitID() string
	Snapshot() models.IntersectionView
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// StreamHub feeds renderers over websockets: a snapshot every frame interval
// plus every controller event as it happens.
type StreamHub struct {
	source   SnapshotSource
	interval time.Duration
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

// NewStreamHub creates a hub. A non-positive interval uses
// DefaultFrameInterval.
func NewStreamHub(source SnapshotSource, interval time.Duration) *StreamHub {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &StreamHub{
		source:   source,
		interval: interval,
		// Renderers are served from anywhere.
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*streamClient]struct{}),
	}
}

// ServeHTTP upgrades the connection and starts streaming.
func (h *StreamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	c := &streamClient{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	log.WithField("remote", r.RemoteAddr).Info("Stream client connected")

	go h.writer(c)
	go h.reader(c)
}

// Clients returns the number of connected clients.
func (h *StreamHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish pushes ev to every client. Clients that cannot keep up are
// dropped.
func (h *StreamHub) Publish(_ context.Context, ev controller.Event) error {
	rec := db.NewRecord(h.source.UnitID(), ev)
	msg, err := json.Marshal(models.StreamMessage{Type: models.StreamEvent, Event: &rec})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.removeLocked(c)
		}
	}
	return nil
}

// Close disconnects every client.
func (h *StreamHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *StreamHub) remove(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *StreamHub) removeLocked(c *streamClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *StreamHub) snapshot() ([]byte, error) {
	view := h.source.Snapshot()
	return json.Marshal(models.StreamMessage{Type: models.StreamSnapshot, Snapshot: &view})
}

func (h *StreamHub) write(c *streamClient, msg []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (h *StreamHub) writer(c *streamClient) {
	ticker := time.NewTicker(h.interval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	frame := func() bool {
		msg, err := h.snapshot()
		if err != nil {
			log.WithError(err).Error("Failed to encode snapshot")
			return false
		}
		return h.write(c, msg) == nil
	}

	if !frame() {
		return
	}
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := h.write(c, msg); err != nil {
				return
			}
		case <-ticker.C:
			if !frame() {
				return
			}
		}
	}
}

// reader discards inbound frames; it exists to notice the peer going away.
func (h *StreamHub) reader(c *streamClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		log.Info("Stream client disconnected")
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
