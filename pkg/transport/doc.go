// Package transport moves frames over plain sockets and WebSockets.
//
// A Dialer produces outbound connections and a Server accepts inbound
// ones. Both hand out Conn values that report their lifecycle to a
// Handler: OnActive once, OnFrame per inbound frame, OnInactive once with
// the reason the connection ended.
//
// # Modes
//
//	socket     TCP (optionally TLS), newline- or length-prefix framed
//	websocket  HTTP upgrade via gorilla/websocket, text and binary messages
//
// # Pipeline
//
// Every connection runs its frames through a Pipeline of Stages fixed when
// the dialer or server is built. The built-in stages are, from the network
// side: LineDelimiter (line-framed sockets only), FrameTracer, SizeLimit
// and FramingGuard (sockets only). Callers may append their own stages.
// Line-framed sockets carry text only; binary commands need
// length-prefix framing or a WebSocket.
//
// # Writes and closes
//
// Write never blocks. Frames are queued and a per-connection write pump
// drains the queue; a full queue returns ErrOutboundFull. Close flushes
// the queue, sends a WebSocket close frame when applicable and waits for
// the read loop to end before notifying the handler.
//
// # Keep-alive
//
// WebSocket connections can probe the peer with sequenced pings. After
// MaxMissedPongs unanswered pings the connection is aborted with
// ErrKeepAliveTimeout.
package transport
