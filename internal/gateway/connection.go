package gateway

import (
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
)

const (
	// maxMessageSize caps a single inbound WebSocket message.
	maxMessageSize = 64 * 1024

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// sendBuffer is the per-connection outbound queue depth. A client that
	// cannot drain it is disconnected rather than allowed to stall fan-out.
	sendBuffer = 256
)

// wsConn is the subset of *websocket.Conn the gateway touches. Narrowed so
// tests can stand in a fake.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// connection owns one socket's write side: a buffered queue drained by a
// single writer goroutine.
type connection struct {
	ws   wsConn
	send chan []byte
	log  zerolog.Logger

	closeOnce sync.Once
}

func newConnection(ws wsConn, logger zerolog.Logger) *connection {
	return &connection{
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		log:  logger,
	}
}

// enqueue queues a frame for writing. A full queue rejects the frame; the
// caller severs the connection so a stalled client cannot hold up fan-out.
func (c *connection) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// close sends a close frame with the given code and severs the socket. Safe
// to call more than once.
func (c *connection) close(code int, reason string) {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

// writePump drains the send queue onto the socket. It exits when the queue
// closes or a write fails.
func (c *connection) writePump() {
	defer func() { _ = c.ws.Close() }()
	for msg := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.log.Debug().Err(err).Msg("websocket write error")
			return
		}
	}
}
