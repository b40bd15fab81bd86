package connection

import (
	"errors"
	"strconv"
)

// ErrorCode is reported to listeners with every failure notification.
// The numeric values are stable.
//
//	101 AlreadyReleased      connect on a released client
//	102 ConnectException     dial refused or timed out
//	103 ExceededMaxRetries   retry ceiling reached, no further attempts
//	104 UnexpectedException  any other failure
//	105 SocketException      established connection lost
//	106 HandshakeFailed      TLS or WebSocket upgrade failed
//	201 ServerReleased       start after stop
//	202 BindFailed           listen failed
//	203 StartUnexpected      accept loop ended with an error
//	204 PeerProtocolError    peer force-closed after a framing violation
type ErrorCode int

const (
	CodeAlreadyReleased     ErrorCode = 101
	CodeConnectException    ErrorCode = 102
	CodeExceededMaxRetries  ErrorCode = 103
	CodeUnexpectedException ErrorCode = 104
	CodeSocketException     ErrorCode = 105
	CodeHandshakeFailed     ErrorCode = 106

	CodeServerReleased    ErrorCode = 201
	CodeBindFailed        ErrorCode = 202
	CodeStartUnexpected   ErrorCode = 203
	CodePeerProtocolError ErrorCode = 204
)

var codeNames = map[ErrorCode]string{
	CodeAlreadyReleased:     "ALREADY_RELEASED",
	CodeConnectException:    "CONNECT_EXCEPTION",
	CodeExceededMaxRetries:  "EXCEEDED_MAX_RETRIES",
	CodeUnexpectedException: "UNEXPECTED_EXCEPTION",
	CodeSocketException:     "SOCKET_EXCEPTION",
	CodeHandshakeFailed:     "HANDSHAKE_FAILED",
	CodeServerReleased:      "SERVER_RELEASED",
	CodeBindFailed:          "BIND_FAILED",
	CodeStartUnexpected:     "START_UNEXPECTED",
	CodePeerProtocolError:   "PEER_PROTOCOL_ERROR",
}

// String returns the code name, or the number for unknown codes.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return strconv.Itoa(int(c))
}

// Manager errors.
var (
	// ErrInvalidCommand rejects a nil Command or a nil Binary payload.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrNotConnected is logged when a command finds no writable
	// connection.
	ErrNotConnected = errors.New("not connected")

	// ErrReleased is reported by a released client or a stopped server.
	ErrReleased = errors.New("manager released")

	// ErrPeerNotFound is logged when a command targets an unknown peer.
	ErrPeerNotFound = errors.New("peer not found")
)
