// Package connection supervises persistent socket and WebSocket
// connections on top of package transport.
//
// # Client
//
// A ClientManager owns one outbound connection:
//
//	UNINITIALIZED -> CONNECTING -> CONNECTED -> DISCONNECTING -> DISCONNECTED
//	                     |             |
//	                     +--> FAILED <-+  (retry pending or given up)
//
// Release moves any state through RELEASING back to UNINITIALIZED and
// cannot be undone.
//
// Connect blocks until the dial succeeds or fails. Overlapping calls share
// one dial. A failed dial or a lost connection moves the client to FAILED
// and runs the retry procedure:
//
//  1. skip it when the loss was caused by DisconnectManually or Release
//  2. count the attempt; past RetryStrategy.MaxAttempts report
//     CodeExceededMaxRetries and stop
//  3. otherwise report the failure and reconnect after
//     RetryStrategy.DelayForAttempt
//
// Every failure produces exactly one OnFailed call, delivered as soon as
// the failure is known. A WebSocket close frame from the peer is a
// graceful disconnect: DISCONNECTED, OnDisconnected(true), no retry.
//
// # Server
//
// A ServerManager owns a transport.Server and the PeerSet of accepted
// connections. Start blocks while serving; Stop closes the listener and
// all peers, after which the manager cannot be started again.
//
// # Commands
//
// A Command is either Text or Binary. In WebSocket mode they become text
// and binary messages. On plain sockets text is newline-terminated and
// binary payloads need length-prefix framing.
package connection
