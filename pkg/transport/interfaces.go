package transport

import (
	"context"
	"net"
)

// Handler receives the lifecycle and data events of a connection. The
// connection calls OnActive once before any frame, OnFrame from its read
// goroutine, and OnInactive exactly once after both I/O loops have ended.
type Handler interface {
	OnActive(c Conn)
	OnFrame(c Conn, f Frame)

	// OnInactive reports why the connection ended: nil for a local Close,
	// a *CloseError for a graceful remote close, an ErrProtocol or
	// ErrKeepAliveTimeout wrapped error, or the I/O error that broke the
	// connection.
	OnInactive(c Conn, err error)
}

// Conn is one established connection.
type Conn interface {
	// ID is a unique connection identifier (UUID).
	ID() string

	RemoteAddr() net.Addr

	// Path is the WebSocket request path, or "" for plain sockets.
	Path() string

	// Start attaches the handler and launches the I/O loops. Only the
	// first call has any effect.
	Start(h Handler)

	// Write runs the outbound stages and enqueues the frame without
	// blocking.
	Write(f Frame) error

	// Ping sends a WebSocket ping with the given payload.
	Ping(payload []byte) error

	// Close shuts the connection down gracefully and waits until the
	// handler has been notified.
	Close() error

	// Disconnect begins a graceful close without waiting for it.
	Disconnect()

	// Abort closes the connection immediately, reporting cause to the
	// handler.
	Abort(cause error)

	// Active reports whether frames can still be written.
	Active() bool

	// Done is closed once the connection is fully shut down.
	Done() <-chan struct{}
}

// Dialer establishes outbound connections to one configured endpoint.
type Dialer interface {
	// Dial connects and completes every handshake before returning.
	Dial(ctx context.Context) (Conn, error)

	// Endpoint describes the target, for logs.
	Endpoint() string

	// Release aborts in-flight dials and refuses further ones.
	Release() error
}

// Server accepts inbound connections on one listening endpoint.
type Server interface {
	// Listen binds the endpoint.
	Listen() error

	// Serve accepts connections until Close, handing each to h. It returns
	// nil after Close.
	Serve(h Handler) error

	// Close closes the listening endpoint.
	Close() error

	// Shutdown aborts connections still tracked by the server and waits
	// for its goroutines, or for ctx to expire.
	Shutdown(ctx context.Context) error

	// Addr returns the bound address, or nil before Listen.
	Addr() net.Addr
}

var (
	_ Conn   = (*conn)(nil)
	_ Dialer = (*SocketDialer)(nil)
	_ Dialer = (*WebSocketDialer)(nil)
	_ Server = (*SocketServer)(nil)
	_ Server = (*WebSocketServer)(nil)
)
