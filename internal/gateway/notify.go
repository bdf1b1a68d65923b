package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/auth"
	"github.com/ecto-chat/ecto-server/internal/config"
	"github.com/ecto-chat/ecto-server/internal/member"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// notifyDebounce is the minimum gap between notify frames for one channel
// on one socket.
const notifyDebounce = 2 * time.Second

// NotifyHub serves the lightweight notification socket. Clients complete
// the same hello/identify handshake as the gateway but receive only notify
// frames: channel id, timestamp, and a type of message, mention, or dm.
type NotifyHub struct {
	cfg     *config.Config
	auth    *auth.Service
	members member.Repository
	log     zerolog.Logger

	mu      sync.Mutex
	clients map[uuid.UUID]*notifyClient
}

// NewNotifyHub creates the notify hub.
func NewNotifyHub(cfg *config.Config, authSvc *auth.Service, members member.Repository, logger zerolog.Logger) *NotifyHub {
	return &NotifyHub{
		cfg:     cfg,
		auth:    authSvc,
		members: members,
		log:     logger.With().Str("component", "notify").Logger(),
		clients: make(map[uuid.UUID]*notifyClient),
	}
}

type notifyClient struct {
	id     uuid.UUID
	userID uuid.UUID
	conn   *connection

	mu       sync.Mutex
	lastSent map[uuid.UUID]time.Time
}

// send forwards one notify frame unless the channel fired within the
// debounce window.
func (c *notifyClient) send(p wire.NotifyPayload) {
	c.mu.Lock()
	if last, ok := c.lastSent[p.ChannelID]; ok && p.Ts.Sub(last) < notifyDebounce {
		c.mu.Unlock()
		return
	}
	c.lastSent[p.ChannelID] = p.Ts
	c.mu.Unlock()

	frame, err := marshalFrame(wire.EventNotify, p)
	if err != nil {
		return
	}
	if !c.conn.enqueue(frame) {
		c.conn.close(CloseUnknownError, "send buffer overflow")
	}
}

// ServeWS runs the notify handshake and blocks until the socket closes.
func (h *NotifyHub) ServeWS(ws wsConn) {
	conn := newConnection(ws, h.log)
	go conn.writePump()

	sessionID := uuid.Must(uuid.NewV7())
	hello, err := marshalFrame(wire.EventHello, wire.HelloPayload{
		HeartbeatInterval: int(h.cfg.HeartbeatInterval / time.Millisecond),
		SessionID:         sessionID,
	})
	if err != nil {
		conn.close(CloseUnknownError, "internal error")
		return
	}
	conn.enqueue(hello)

	client := h.identify(ws, conn, sessionID)
	if client == nil {
		return
	}
	defer h.unregister(client)

	ws.SetReadLimit(maxMessageSize)
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(msg, &frame); err != nil {
			conn.close(CloseInvalidPayload, "malformed frame")
			return
		}
		if frame.Event == wire.EventHeartbeat {
			if ack, err := marshalFrame(wire.EventHeartbeatAck, struct{}{}); err == nil {
				conn.enqueue(ack)
			}
		}
	}
}

// identify waits for the identify frame, verifies it, registers the client,
// and acks with an empty ready.
func (h *NotifyHub) identify(ws wsConn, conn *connection, sessionID uuid.UUID) *notifyClient {
	_ = ws.SetReadDeadline(time.Now().Add(identifyWait))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		conn.close(CloseNotAuthenticated, "identify timeout")
		return nil
	}
	_ = ws.SetReadDeadline(time.Time{})

	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil || frame.Event != wire.EventIdentify {
		conn.close(CloseInvalidPayload, "identify expected")
		return nil
	}
	var p wire.IdentifyPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil || p.Token == "" {
		conn.close(CloseAuthenticationFailed, "token required")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ident, err := h.auth.VerifyToken(ctx, p.Token)
	if err != nil {
		conn.close(CloseAuthenticationFailed, "invalid token")
		return nil
	}
	isMember, err := h.members.Exists(ctx, ident.UserID)
	if err != nil || !isMember {
		conn.close(CloseAuthenticationFailed, "not a member")
		return nil
	}

	client := &notifyClient{
		id:       sessionID,
		userID:   ident.UserID,
		conn:     conn,
		lastSent: make(map[uuid.UUID]time.Time),
	}
	h.mu.Lock()
	h.clients[sessionID] = client
	h.mu.Unlock()

	if ready, err := marshalFrame(wire.EventReady, struct{}{}); err == nil {
		conn.enqueue(ready)
	}
	return client
}

func (h *NotifyHub) unregister(client *notifyClient) {
	h.mu.Lock()
	delete(h.clients, client.id)
	h.mu.Unlock()
	client.conn.close(CloseUnknownError, "")
}

// Broadcast pushes a notify frame to every connected socket except the
// actor's own.
func (h *NotifyHub) Broadcast(actorID uuid.UUID, channelID uuid.UUID, typ string) {
	p := wire.NotifyPayload{ChannelID: channelID, Ts: time.Now().UTC(), Type: typ}
	for _, c := range h.snapshot() {
		if c.userID != actorID {
			c.send(p)
		}
	}
}

// ToUser pushes a notify frame to one user's sockets.
func (h *NotifyHub) ToUser(userID uuid.UUID, channelID uuid.UUID, typ string) {
	p := wire.NotifyPayload{ChannelID: channelID, Ts: time.Now().UTC(), Type: typ}
	for _, c := range h.snapshot() {
		if c.userID == userID {
			c.send(p)
		}
	}
}

func (h *NotifyHub) snapshot() []*notifyClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := make([]*notifyClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// Shutdown closes every notify socket.
func (h *NotifyHub) Shutdown() {
	for _, c := range h.snapshot() {
		h.unregister(c)
	}
}
