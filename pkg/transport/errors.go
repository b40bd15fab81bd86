package transport

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	// ErrConnectionClosed is returned by writes on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrOutboundFull is returned when the outbound buffer cannot take
	// another frame without blocking.
	ErrOutboundFull = errors.New("outbound buffer full")

	// ErrHandshake wraps failures of the TLS or WebSocket upgrade handshake.
	ErrHandshake = errors.New("handshake failed")

	// ErrProtocol wraps unrecoverable framing violations by the peer.
	ErrProtocol = errors.New("protocol error")

	// ErrKeepAliveTimeout is the cause reported when the peer stops
	// answering pings.
	ErrKeepAliveTimeout = errors.New("keep-alive timeout")

	// ErrUnsupported is returned for operations the connection mode cannot
	// perform, such as pings on plain sockets.
	ErrUnsupported = errors.New("operation not supported")

	// ErrReleased is returned by a dialer after Release.
	ErrReleased = errors.New("transport released")

	// ErrServerClosed is returned by Serve or Listen after Close.
	ErrServerClosed = errors.New("server closed")
)

// CloseError reports a graceful close initiated by the remote side
// (a WebSocket close frame).
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("closed by peer (code %d)", e.Code)
	}
	return fmt.Sprintf("closed by peer (code %d): %s", e.Code, e.Text)
}

// IsRemoteClose reports whether err is a graceful remote close.
func IsRemoteClose(err error) bool {
	var ce *CloseError
	return errors.As(err, &ce)
}

func protocolError(err error) error {
	if errors.Is(err, ErrProtocol) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrProtocol, err)
}
