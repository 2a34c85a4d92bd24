package realtime

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds how long a single socket write may take before the
	// connection is considered dead.
	writeWait = 10 * time.Second
	// pongWait is how long we wait for a pong before dropping the peer.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait so pings go out in time.
	pingPeriod = (pongWait * 9) / 10
	// sendBuffer is the per-connection outbound queue. When it fills, the
	// connection is dropped rather than letting one slow reader stall the
	// hub; delivery is best-effort.
	sendBuffer = 64
)

// Conn is one live websocket channel to a single identity. A user with
// several tabs or devices owns several Conns at once. Writes go through a
// buffered channel drained by writePump, so callers never block on socket
// I/O and a failure on one Conn never affects another.
type Conn struct {
	// ID uniquely identifies this connection inside the hub directory.
	ID string
	// Identity is the case-normalized username that authenticated the socket.
	Identity string

	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewConn wraps an upgraded websocket for the given identity.
func NewConn(identity string, ws *websocket.Conn) *Conn {
	return &Conn{
		ID:       uuid.NewString(),
		Identity: identity,
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
	}
}

// deliver queues an envelope for this connection. It returns false when the
// connection's buffer is full or already closed; the caller treats that as a
// dead peer and unregisters it.
func (c *Conn) deliver(env Envelope) bool {
	msg, err := json.Marshal(env)
	if err != nil {
		log.Printf("realtime: marshal event %q failed: %v", env.Event, err)
		return true // the connection itself is fine
	}
	// The lock serializes queueing against Close: sending on a closed
	// channel would panic, and the hub may race a delivery against an
	// unregister of the same connection.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close tears the socket down. Safe to call more than once; the write pump
// also calls it on its way out.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// WritePump drains the outbound queue onto the socket and keeps the
// connection alive with periodic pings. It must run in its own goroutine,
// exactly one per connection, and returns when the queue is closed or a
// write fails.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump consumes inbound frames until the peer goes away, then invokes
// onClose exactly once. Clients do not send application data over the
// socket (all mutations go through the HTTP API), so inbound frames are
// discarded; the read loop exists to notice disconnects and answer pings.
func (c *Conn) ReadPump(onClose func()) {
	defer onClose()
	c.ws.SetReadLimit(1024)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}
