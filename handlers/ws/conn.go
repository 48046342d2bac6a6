package ws

import (
	"sync"
	"time"

	"collabroom/core"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// Conn adapts a gorilla websocket connection to the core.Socket contract:
// frames are delivered to message handlers in arrival order by a single read
// pump, and close handlers fire exactly once however the connection ends.
type Conn struct {
	ws *websocket.Conn

	// writeMu serializes writers; gorilla connections allow one concurrent
	// writer.
	writeMu sync.Mutex

	mu            sync.Mutex
	msgHandlers   []func(payload []byte)
	closeHandlers []func()
	closed        bool

	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Send writes one text frame to the peer.
func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return core.ErrSocketClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// OnMessage registers a handler for inbound frames.
func (c *Conn) OnMessage(handler func(payload []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgHandlers = append(c.msgHandlers, handler)
}

// OnClose registers a close handler. If the connection already terminated the
// handler runs immediately, preserving exactly-once close semantics for late
// registrants.
func (c *Conn) OnClose(handler func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		handler()
		return
	}
	c.closeHandlers = append(c.closeHandlers, handler)
	c.mu.Unlock()
}

// Close terminates the connection from the server side.
func (c *Conn) Close() error {
	c.fireClose()
	return nil
}

// ReadPump reads frames until the connection terminates, dispatching each to
// the registered message handlers in order. It blocks the caller; run it last.
func (c *Conn) ReadPump() {
	defer c.fireClose()
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.mu.Lock()
		handlers := make([]func([]byte), len(c.msgHandlers))
		copy(handlers, c.msgHandlers)
		c.mu.Unlock()
		for _, handler := range handlers {
			handler(payload)
		}
	}
}

func (c *Conn) fireClose() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		handlers := make([]func(), len(c.closeHandlers))
		copy(handlers, c.closeHandlers)
		c.closeHandlers = nil
		c.mu.Unlock()

		_ = c.ws.Close()
		for _, handler := range handlers {
			handler()
		}
	})
}
