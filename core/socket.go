package core

// Socket is the minimal capability surface the room core needs from a
// transport connection. Implementations wrap whatever the transport layer
// actually speaks (WebSocket, in-process pipes in tests).
//
// Message handlers are invoked once per inbound frame, in the order the
// transport received them. Close handlers fire exactly once, regardless of
// whether the close originated from the client, the server, or an error path.
type Socket interface {
	// Send writes one frame to the peer. It fails with ErrSocketClosed (or a
	// transport error) once the underlying connection is no longer open.
	Send(payload []byte) error

	// OnMessage registers a handler for inbound frames.
	OnMessage(handler func(payload []byte))

	// OnClose registers a handler invoked when the connection terminates for
	// any reason. Registering after the connection closed invokes the handler
	// immediately.
	OnClose(handler func())

	// Close terminates the connection from the server side.
	Close() error
}
