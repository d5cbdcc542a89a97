// Package wstransport is the concrete callengine.SignalingTransport over
// gorilla/websocket. A Hub is a small relay server: each connected user
// registers under its userID, and the Hub forwards every inbound frame to
// whichever userID the envelope's "remoteUserId" field names — the same
// register/unregister/broadcast shape as the Hub in the sibling
// n0remac-robot-webrtc repo's websocket package, adapted from room-broadcast
// to 1:1-by-userID routing since this is a 1-to-1 engine, not a room chat.
//
// ClientTransport (client.go) is what an Engine is actually constructed
// with: it dials a Hub as a gorilla/websocket client and satisfies
// callengine.SignalingTransport directly.
package wstransport

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sebas/callengine/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// conn is one registered server-side connection.
type conn struct {
	userID string
	ws     *websocket.Conn
	send   chan []byte
}

// Hub relays signaling frames between connected users by userID. It does
// not interpret message semantics beyond reading the envelope's routing
// fields — that is the Engine/Codec's job on either end.
type Hub struct {
	mu    sync.Mutex
	conns map[string]*conn

	register   chan *conn
	unregister chan *conn
}

// NewHub returns a Hub with its relay loop not yet started; call Run in a
// goroutine before serving any connections.
func NewHub() *Hub {
	return &Hub{
		conns:      make(map[string]*conn),
		register:   make(chan *conn),
		unregister: make(chan *conn),
	}
}

// Run drives registration bookkeeping until ctx-less shutdown (the process
// exiting). It is meant to run for the lifetime of the demo process.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if old, ok := h.conns[c.userID]; ok {
				close(old.send)
			}
			h.conns[c.userID] = c
			h.mu.Unlock()
			logger.Info("wstransport: user registered", "user", c.userID)
		case c := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.conns[c.userID]; ok && cur == c {
				delete(h.conns, c.userID)
				close(c.send)
			}
			h.mu.Unlock()
			logger.Info("wstransport: user unregistered", "user", c.userID)
		}
	}
}

// route looks up toUserID's live connection and enqueues payload on its
// send channel. Silently drops the frame if toUserID isn't connected — the
// engine's own calling timeout is what surfaces that as a visible failure,
// the same way a real signaling relay would.
func (h *Hub) route(toUserID string, payload []byte) {
	h.mu.Lock()
	c, ok := h.conns[toUserID]
	h.mu.Unlock()
	if !ok {
		logger.Warn("wstransport: route to disconnected user", "to", toUserID)
		return
	}
	select {
	case c.send <- payload:
	default:
		logger.Warn("wstransport: send buffer full, dropping frame", "to", toUserID)
	}
}

// envelope mirrors just enough of callengine.CallMessage's JSON shape to
// route a frame without importing the callengine package into the relay.
type envelope struct {
	RemoteUserID string `json:"remoteUserId"`
}

// UpgradeHandler returns an http.HandlerFunc that upgrades the request to a
// WebSocket, registers it under the "user" query parameter, and relays
// every frame it reads to the remoteUserId the frame names.
func (h *Hub) UpgradeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		if userID == "" {
			http.Error(w, "missing user query parameter", http.StatusBadRequest)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("wstransport: upgrade failed", "err", err)
			return
		}
		c := &conn{userID: userID, ws: ws, send: make(chan []byte, 32)}
		h.register <- c

		go c.writePump()
		c.readPump(h)
	}
}

func (c *conn) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		_ = c.ws.Close()
	}()
	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if jerr := json.Unmarshal(message, &env); jerr != nil || env.RemoteUserID == "" {
			logger.Warn("wstransport: undeliverable frame", "from", c.userID, "err", jerr)
			continue
		}
		h.route(env.RemoteUserID, message)
	}
}

func (c *conn) writePump() {
	for message := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}
