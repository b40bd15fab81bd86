// Package log records a machine-readable trace of connection activity.
//
// It is separate from operational logging, which uses log/slog directly.
// The trace captures every frame, control message, lifecycle transition
// and failure seen by the transports and managers, so a session can be
// replayed and inspected after the fact.
//
// # Usage
//
// Managers and transports accept a Logger in their config:
//
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	fl, _ := log.NewFileLogger("/var/log/tether/client.tlog")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(nil), fl)
//
// # File format
//
// Trace files are a stream of CBOR-encoded events with integer map keys.
// Use Reader to iterate them, or the "tether log" command.
package log
