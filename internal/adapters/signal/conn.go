// Package signal adapts websocket connections to the room coordinator.
package signal

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrBackpressure = errors.New("send buffer full")
	ErrConnClosed   = errors.New("connection closed")
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 5 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	sendBuffer = 32
)

// frame is one queued outbound item. A frame with a close code ends the
// connection after everything queued before it has been flushed, so a scoped
// error reply always reaches the client ahead of its close frame.
type frame struct {
	data      []byte
	closeCode int
	reason    string
}

// wsConn implements core.Conn over a gorilla websocket. Frames are marshaled
// on the caller's goroutine and queued; the write pump owns the socket.
type wsConn struct {
	conn   *websocket.Conn
	send   chan frame
	mu     sync.Mutex
	closed bool
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{conn: ws, send: make(chan frame, sendBuffer)}
}

func (c *wsConn) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- frame{data: data}:
		return nil
	default:
		return ErrBackpressure
	}
}

// CloseWithCode queues the closing handshake. Idempotent; later Sends fail
// with ErrConnClosed.
func (c *wsConn) CloseWithCode(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	select {
	case c.send <- frame{closeCode: code, reason: reason}:
		c.mu.Unlock()
		return
	default:
	}
	c.mu.Unlock()

	// Queue full: close the socket directly rather than wait it out.
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.conn.Close()
}
