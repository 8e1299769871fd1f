package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"geez-bingo/internal/engine"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	defaultSendBuffer = 32
)

// Hub fans session events out to websocket subscribers of that session.
// A subscriber whose buffer is full is disconnected instead of slowing others.
type Hub struct {
	upgrader   websocket.Upgrader
	sendBuffer int

	mu   sync.RWMutex
	subs map[int64]map[*subscriber]struct{}
}

type subscriber struct {
	conn   *websocket.Conn
	send   chan []byte
	closed bool
}

var _ Sink = (*Hub)(nil)

// NewHub creates a Hub. Every origin is accepted.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sendBuffer: defaultSendBuffer,
		subs:       make(map[int64]map[*subscriber]struct{}),
	}
}

// Name implements Sink.
func (h *Hub) Name() string { return "websocket" }

// Publish implements Sink.
func (h *Hub) Publish(_ context.Context, topic int64, ev engine.Event) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	var lagging []*subscriber
	h.mu.RLock()
	for s := range h.subs[topic] {
		select {
		case s.send <- msg:
		default:
			lagging = append(lagging, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range lagging {
		log.Warn().Int64("session_id", topic).Msg("Websocket subscriber lagging, disconnecting")
		h.remove(topic, s)
	}
	return nil
}

// Serve upgrades the request and streams topic's events to the client until
// it disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, topic int64) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade websocket: %w", err)
	}

	s := &subscriber{conn: conn, send: make(chan []byte, h.sendBuffer)}
	h.add(topic, s)

	log.Debug().
		Int64("session_id", topic).
		Str("remote", r.RemoteAddr).
		Msg("Websocket subscriber connected")

	go h.writePump(topic, s)
	h.readPump(topic, s)
	return nil
}

// Subscribers returns the number of subscribers for topic.
func (h *Hub) Subscribers(topic int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, set := range h.subs {
		for s := range set {
			h.closeLocked(s)
		}
		delete(h.subs, topic)
	}
}

func (h *Hub) add(topic int64, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[topic] = set
	}
	set[s] = struct{}{}
}

func (h *Hub) remove(topic int64, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, topic)
		}
	}
	h.closeLocked(s)
}

// closeLocked closes the send channel. Caller holds h.mu for writing, so no
// Publish can be sending at the same time.
func (h *Hub) closeLocked(s *subscriber) {
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// readPump discards client messages and keeps the connection alive.
func (h *Hub) readPump(topic int64, s *subscriber) {
	defer func() {
		h.remove(topic, s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Int64("session_id", topic).Msg("Websocket read error")
			}
			return
		}
	}
}

func (h *Hub) writePump(topic int64, s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Int64("session_id", topic).Msg("Websocket write error")
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
