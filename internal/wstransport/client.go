package wstransport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sebas/callengine/internal/logger"
)

// inbound registry duplicated per-package — see rtcmedia/subs.go for the
// same pattern and rationale (no exported generic registry in callengine).
type inboundSubs struct {
	mu     sync.Mutex
	nextID uint64
	fns    map[uint64]func(fromUserID string, payload []byte)
}

func newInboundSubs() *inboundSubs {
	return &inboundSubs{fns: make(map[uint64]func(string, []byte))}
}

func (s *inboundSubs) subscribe(fn func(string, []byte)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.fns[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.fns, id)
		s.mu.Unlock()
	}
}

func (s *inboundSubs) emit(from string, payload []byte) {
	s.mu.Lock()
	fns := make([]func(string, []byte), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(from, payload)
	}
}

// ClientTransport is a callengine.SignalingTransport that relays through a
// Hub over a single persistent WebSocket connection, one per local user.
type ClientTransport struct {
	userID string
	ws     *websocket.Conn
	send   chan []byte
	subs   *inboundSubs

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to a Hub's UpgradeHandler at wsURL (e.g. "ws://host/ws")
// registered under userID (sent as the "user" query parameter, not
// authenticated), and starts its read/write pumps.
func Dial(ctx context.Context, wsURL, userID string) (*ClientTransport, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("wstransport: parse url: %w", err)
	}
	q := u.Query()
	q.Set("user", userID)
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("wstransport: dial %s: %w", u.String(), err)
	}

	t := &ClientTransport{
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, 32),
		subs:   newInboundSubs(),
		closed: make(chan struct{}),
	}
	go t.writePump()
	go t.readPump()
	return t, nil
}

// SendMessage implements callengine.SignalingTransport.
func (t *ClientTransport) SendMessage(ctx context.Context, userID string, payload []byte) error {
	select {
	case t.send <- payload:
		return nil
	case <-t.closed:
		return fmt.Errorf("wstransport: transport for %s is closed", t.userID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnMessageReceive implements callengine.SignalingTransport.
func (t *ClientTransport) OnMessageReceive(fn func(fromUserID string, payload []byte)) func() {
	return t.subs.subscribe(fn)
}

// Close shuts down the underlying connection. Safe to call more than once.
func (t *ClientTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.ws.Close()
	})
	return err
}

func (t *ClientTransport) writePump() {
	for {
		select {
		case message := <-t.send:
			if err := t.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("wstransport: write failed", "user", t.userID, "err", err)
				return
			}
		case <-t.closed:
			return
		}
	}
}

func (t *ClientTransport) readPump() {
	defer t.Close()
	for {
		_, message, err := t.ws.ReadMessage()
		if err != nil {
			logger.Debug("wstransport: read loop ended", "user", t.userID, "err", err)
			return
		}
		var env struct {
			FromUserID string `json:"fromUserId"`
		}
		if jerr := json.Unmarshal(message, &env); jerr != nil {
			logger.Warn("wstransport: malformed frame", "user", t.userID, "err", jerr)
			continue
		}
		t.subs.emit(env.FromUserID, message)
	}
}
