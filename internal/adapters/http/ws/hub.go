// Package ws streams playback commands and display updates to browser and
// player clients over websockets.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/kitchenbeat/internal/domain/dispatch"
	"github.com/okian/kitchenbeat/pkg/logger"
	"github.com/okian/kitchenbeat/pkg/metrics"
)

const (
	writeWait         = 2 * time.Second
	pongWait          = 30 * time.Second
	pingPeriod        = pongWait * 9 / 10
	defaultSendBuffer = 64
)

// Envelope is the frame written to clients.
type Envelope struct {
	Channel string `json:"channel"` // playback | display
	Data    any    `json:"data"`
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithSendBuffer sets the per-client outbound buffer.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub is a dispatch.Sink that broadcasts to every connected client. A client
// that cannot keep up loses frames instead of stalling the broadcaster.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool
	buffer      int
	dropped     atomic.Uint64
	upgrader    websocket.Upgrader
	log         logger.Logger
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subscribers: make(map[string]*subscriber),
		buffer:      defaultSendBuffer,
		log:         logger.Discard(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Display clients live on the local kitchen network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements dispatch.Sink.
func (h *Hub) Name() string { return "websocket" }

// Playback implements dispatch.Sink.
func (h *Hub) Playback(_ context.Context, cmd dispatch.PlaybackCommand) error {
	return h.broadcast(Envelope{Channel: "playback", Data: cmd})
}

// Display implements dispatch.Sink.
func (h *Hub) Display(_ context.Context, u dispatch.DisplayUpdate) error {
	return h.broadcast(Envelope{Channel: "display", Data: u})
}

func (h *Hub) broadcast(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", env.Channel, err)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHubClosed
	}
	for _, s := range h.subscribers {
		select {
		case s.send <- data:
		default:
			h.dropped.Add(1)
			metrics.RecordWSFrameDropped(env.Channel)
		}
	}
	return nil
}

// Dropped returns how many frames were skipped for clients with a full buffer.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// ServeHTTP upgrades the request and streams frames until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	sub := &subscriber{id: uuid.NewString(), conn: conn, send: make(chan []byte, h.buffer)}
	if !h.subscribe(sub) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.log.Debug(r.Context(), "websocket client connected", logger.String("client", sub.id))

	go h.writeLoop(sub)
	h.readLoop(sub)
}

func (h *Hub) subscribe(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subscribers[s.id] = s
	metrics.UpdateWSClients(len(h.subscribers))
	return true
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[s.id]; ok {
		delete(h.subscribers, s.id)
		s.close()
	}
	metrics.UpdateWSClients(len(h.subscribers))
	h.mu.Unlock()
}

// readLoop discards client input and detects disconnects.
func (h *Hub) readLoop(s *subscriber) {
	defer func() {
		h.unsubscribe(s)
		_ = s.conn.Close()
	}()
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case data, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, s := range h.subscribers {
		s.close()
		delete(h.subscribers, id)
	}
	metrics.UpdateWSClients(0)
	return nil
}
