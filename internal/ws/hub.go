// Package ws pushes live feed events and reveal notifications to
// connected clients over websockets.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message is the JSON frame sent to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans messages out to connected clients. Broadcast frames go to
// everyone; Notify frames go only to a user's own connections.
type Hub struct {
	log *zap.SugaredLogger

	Broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	clients map[*Client]struct{}
	byUser  map[string]map[*Client]struct{}
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		log:        log,
		Broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]struct{}),
		byUser:     make(map[string]map[*Client]struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.Broadcast:
			h.mu.RLock()
			for c := range h.clients {
				c.trySend(msg)
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastEvent marshals and queues a frame for every connected client.
func (h *Hub) BroadcastEvent(typ string, data any) {
	raw, err := json.Marshal(Message{Type: typ, Data: data})
	if err != nil {
		h.log.Warnw("marshal broadcast", "type", typ, "err", err)
		return
	}
	select {
	case h.Broadcast <- raw:
	default:
		h.log.Warnw("broadcast queue full, dropping", "type", typ)
	}
}

// Notify implements pulse.Notifier by pushing the frame to every open
// connection the user holds. Offline users are a no-op; push delivery
// for them belongs to the external notification service.
func (h *Hub) Notify(_ context.Context, userID, kind string, payload any) {
	raw, err := json.Marshal(Message{Type: kind, Data: payload})
	if err != nil {
		h.log.Warnw("marshal notify", "kind", kind, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byUser[userID] {
		c.trySend(raw)
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if c.userID != "" {
		if h.byUser[c.userID] == nil {
			h.byUser[c.userID] = make(map[*Client]struct{})
		}
		h.byUser[c.userID][c] = struct{}{}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	if set := h.byUser[c.userID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.userID)
		}
	}
	close(c.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
	}
	h.clients = make(map[*Client]struct{})
	h.byUser = make(map[string]map[*Client]struct{})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeWs upgrades the request and attaches the connection to the hub.
// userID may be empty for viewers who only want broadcast frames.
func ServeWs(hub *Hub, userID string, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warnw("ws upgrade failed", "err", err)
		return
	}

	c := &Client{hub: hub, conn: conn, userID: userID, send: make(chan []byte, 32)}
	hub.register <- c

	go c.writePump()
	go c.readPump()
}
