package transport

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tether-io/tether-go/pkg/log"
)

// DefaultConnectTimeout bounds a dial including every handshake.
const DefaultConnectTimeout = 30 * time.Second

// DialerConfig configures a SocketDialer or WebSocketDialer.
type DialerConfig struct {
	// Address is the host:port of a plain socket endpoint.
	Address string

	// URL is the ws:// or wss:// endpoint in WebSocket mode.
	URL string

	// WebSocket selects WebSocket mode.
	WebSocket bool

	// Header is sent with the WebSocket upgrade request.
	Header http.Header

	// TLS enables TLS on plain sockets and configures wss:// dials.
	TLS *tls.Config

	// ConnectTimeout bounds the dial and handshakes (default 30s).
	ConnectTimeout time.Duration

	// Framing applies to plain sockets only.
	Framing Framing

	// MaxFrameSize bounds inbound and outbound frames (default 64 KB).
	MaxFrameSize int

	// OutboundBuffer is the outbound queue length per connection.
	OutboundBuffer int

	// CloseTimeout bounds the closing handshake.
	CloseTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration

	// KeepAlive enables WebSocket pings when PingInterval > 0.
	KeepAlive KeepAliveConfig

	// Stages are appended after the built-in stages, on the application side.
	Stages []Stage

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

func (c *DialerConfig) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.ProtocolLogger = log.OrNoop(c.ProtocolLogger)
}

// ServerConfig configures a SocketServer or WebSocketServer.
type ServerConfig struct {
	// Address to listen on, e.g. ":9000".
	Address string

	// WebSocket selects WebSocket mode.
	WebSocket bool

	// Path is the upgrade path in WebSocket mode (default "/").
	Path string

	// TLS enables TLS on the listener.
	TLS *tls.Config

	// CheckOrigin overrides the WebSocket origin check. Nil keeps the
	// same-origin default.
	CheckOrigin func(r *http.Request) bool

	// HandshakeTimeout bounds the TLS handshake of accepted sockets and the
	// HTTP request headers of WebSocket upgrades (default 10s).
	HandshakeTimeout time.Duration

	Framing        Framing
	MaxFrameSize   int
	OutboundBuffer int
	CloseTimeout   time.Duration
	WriteTimeout   time.Duration
	KeepAlive      KeepAliveConfig
	Stages         []Stage

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

func (c *ServerConfig) applyDefaults() {
	if c.Path == "" {
		c.Path = "/"
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.ProtocolLogger = log.OrNoop(c.ProtocolLogger)
}

// NewDialer returns the dialer matching cfg.WebSocket.
func NewDialer(cfg DialerConfig) (Dialer, error) {
	if cfg.WebSocket {
		return NewWebSocketDialer(cfg)
	}
	return NewSocketDialer(cfg)
}

// NewServer returns the server matching cfg.WebSocket.
func NewServer(cfg ServerConfig) (Server, error) {
	if cfg.WebSocket {
		return NewWebSocketServer(cfg)
	}
	return NewSocketServer(cfg)
}

// buildPipeline assembles the built-in stages, network side first,
// followed by the caller's stages. framing is nil for WebSocket
// connections. Outbound frames pass the checks before the tracer, so
// rejected frames are never traced.
func buildPipeline(framing *Framing, maxFrame int, tracer FrameTracer, extra []Stage) (*Pipeline, error) {
	var stages []Stage
	if framing != nil && *framing == FramingLine {
		stages = append(stages, LineDelimiter{})
	}
	stages = append(stages, tracer, SizeLimit{Max: maxFrame})
	if framing != nil {
		stages = append(stages, FramingGuard{Framing: *framing})
	}
	stages = append(stages, extra...)
	return NewPipeline(stages...)
}

// connTracker is the set of live connections owned by a server.
type connTracker struct {
	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func (t *connTracker) add(c *conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	if t.conns == nil {
		t.conns = make(map[*conn]struct{})
	}
	t.conns[c] = struct{}{}
	return true
}

func (t *connTracker) remove(c *conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, c)
}

func (t *connTracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// shutdown refuses new connections, aborts the tracked ones and waits
// for the worker goroutines.
func (t *connTracker) shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	conns := make([]*conn, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	for _, c := range conns {
		c.Abort(ErrServerClosed)
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
