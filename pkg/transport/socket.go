package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tether-io/tether-go/pkg/log"
)

// socketCodec frames data on a plain TCP (or TLS) connection.
type socketCodec struct {
	nc           net.Conn
	framing      Framing
	lines        *LineReader
	frames       *FrameReader
	writer       *FrameWriter
	writeTimeout time.Duration
}

func newSocketCodec(nc net.Conn, framing Framing, maxFrame int, writeTimeout time.Duration) *socketCodec {
	sc := &socketCodec{nc: nc, framing: framing, writeTimeout: writeTimeout}
	if framing == FramingLengthPrefix {
		sc.frames = NewFrameReader(nc, maxFrame)
		sc.writer = NewFrameWriter(nc, maxFrame)
	} else {
		sc.lines = NewLineReader(nc, maxFrame)
	}
	return sc
}

func (s *socketCodec) readFrame() (Frame, error) {
	if s.framing == FramingLengthPrefix {
		data, err := s.frames.ReadFrame()
		if err != nil {
			return Frame{}, err
		}
		return BinaryFrame(data), nil
	}
	line, err := s.lines.ReadLine()
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameText, Data: line}, nil
}

func (s *socketCodec) writeFrame(f Frame) error {
	if s.writeTimeout > 0 {
		_ = s.nc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if s.framing == FramingLengthPrefix {
		return s.writer.WriteFrame(f.Data)
	}
	if len(f.Data) == 0 {
		return nil
	}
	_, err := s.nc.Write(f.Data)
	return err
}

func (s *socketCodec) writeControl(log.ControlMsgType, []byte) error {
	return ErrUnsupported
}

func (s *socketCodec) close() error        { return s.nc.Close() }
func (s *socketCodec) remoteAddr() net.Addr { return s.nc.RemoteAddr() }
func (s *socketCodec) path() string         { return "" }

// SocketDialer dials plain TCP endpoints, optionally over TLS.
type SocketDialer struct {
	cfg      DialerConfig
	opts     connOptions
	ctx      context.Context
	cancel   context.CancelFunc
	released atomic.Bool
}

// NewSocketDialer creates a SocketDialer for cfg.Address.
func NewSocketDialer(cfg DialerConfig) (*SocketDialer, error) {
	if cfg.Address == "" {
		return nil, errors.New("transport: socket dialer requires an address")
	}
	cfg.applyDefaults()

	pipeline, err := buildPipeline(&cfg.Framing, cfg.MaxFrameSize,
		FrameTracer{Logger: cfg.ProtocolLogger, Role: log.RoleClient, Endpoint: cfg.Address}, cfg.Stages)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SocketDialer{
		cfg: cfg,
		opts: connOptions{
			role:           log.RoleClient,
			endpoint:       cfg.Address,
			pipeline:       pipeline,
			protoLog:       cfg.ProtocolLogger,
			logger:         cfg.Logger,
			outboundBuffer: cfg.OutboundBuffer,
			closeTimeout:   cfg.CloseTimeout,
		},
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Endpoint returns the dialed address.
func (d *SocketDialer) Endpoint() string {
	return d.cfg.Address
}

// Dial connects, completes the TLS handshake when configured and returns
// the unstarted connection.
func (d *SocketDialer) Dial(ctx context.Context) (Conn, error) {
	if d.released.Load() {
		return nil, ErrReleased
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ConnectTimeout)
	defer cancel()
	stop := context.AfterFunc(d.ctx, cancel)
	defer stop()

	var nd net.Dialer
	nc, err := nd.DialContext(ctx, "tcp", d.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.cfg.Address, err)
	}

	if d.cfg.TLS != nil {
		tc := tls.Client(nc, d.tlsConfig())
		if err := tc.HandshakeContext(ctx); err != nil {
			nc.Close()
			return nil, fmt.Errorf("%w: tls: %w", ErrHandshake, err)
		}
		nc = tc
	}

	if d.released.Load() {
		nc.Close()
		return nil, ErrReleased
	}
	return newConn(newSocketCodec(nc, d.cfg.Framing, d.cfg.MaxFrameSize, d.cfg.WriteTimeout), d.opts), nil
}

// tlsConfig fills ServerName from the dialed host when unset.
func (d *SocketDialer) tlsConfig() *tls.Config {
	if d.cfg.TLS.ServerName != "" || d.cfg.TLS.InsecureSkipVerify {
		return d.cfg.TLS
	}
	cfg := d.cfg.TLS.Clone()
	if host, _, err := net.SplitHostPort(d.cfg.Address); err == nil {
		cfg.ServerName = host
	}
	return cfg
}

// Release aborts in-flight dials and refuses new ones.
func (d *SocketDialer) Release() error {
	if d.released.CompareAndSwap(false, true) {
		d.cancel()
	}
	return nil
}

// SocketServer accepts plain TCP connections, optionally over TLS.
type SocketServer struct {
	cfg    ServerConfig
	opts   connOptions
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	tracker connTracker
}

// NewSocketServer creates a SocketServer for cfg.Address.
func NewSocketServer(cfg ServerConfig) (*SocketServer, error) {
	cfg.applyDefaults()

	pipeline, err := buildPipeline(&cfg.Framing, cfg.MaxFrameSize,
		FrameTracer{Logger: cfg.ProtocolLogger, Role: log.RoleServer, Endpoint: cfg.Address}, cfg.Stages)
	if err != nil {
		return nil, err
	}

	return &SocketServer{
		cfg:    cfg,
		logger: cfg.Logger,
		opts: connOptions{
			role:           log.RoleServer,
			endpoint:       cfg.Address,
			pipeline:       pipeline,
			protoLog:       cfg.ProtocolLogger,
			logger:         cfg.Logger,
			outboundBuffer: cfg.OutboundBuffer,
			closeTimeout:   cfg.CloseTimeout,
		},
	}, nil
}

// Listen binds the listening socket. Calling it again after a successful
// bind is a no-op.
func (s *SocketServer) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Address, err)
	}
	if s.cfg.TLS != nil {
		ln = tls.NewListener(ln, s.cfg.TLS)
	}
	s.listener = ln
	return nil
}

// Serve accepts connections until Close.
func (s *SocketServer) Serve(h Handler) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	ln := s.listener
	if ln == nil {
		s.mu.Unlock()
		return errors.New("transport: Serve called before Listen")
	}
	s.tracker.wg.Add(1)
	s.mu.Unlock()
	defer s.tracker.wg.Done()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn("accept timeout", "error", err)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.tracker.wg.Add(1)
		go s.handle(nc, h)
	}
}

func (s *SocketServer) handle(nc net.Conn, h Handler) {
	defer s.tracker.wg.Done()

	if tc, ok := nc.(*tls.Conn); ok {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)
		err := tc.HandshakeContext(ctx)
		cancel()
		if err != nil {
			s.logger.Debug("tls handshake failed", "remote", nc.RemoteAddr(), "error", err)
			nc.Close()
			return
		}
	}

	c := newConn(newSocketCodec(nc, s.cfg.Framing, s.cfg.MaxFrameSize, s.cfg.WriteTimeout), s.opts)
	if !s.tracker.add(c) {
		nc.Close()
		return
	}
	defer s.tracker.remove(c)

	c.Start(h)
	<-c.Done()
}

func (s *SocketServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close closes the listening socket. Accepted connections stay open.
func (s *SocketServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.listener == nil {
		return nil
	}
	return ignoreClosed(s.listener.Close())
}

// Shutdown aborts remaining connections and waits for all goroutines.
func (s *SocketServer) Shutdown(ctx context.Context) error {
	return s.tracker.shutdown(ctx)
}

// ConnectionCount returns the number of live connections.
func (s *SocketServer) ConnectionCount() int {
	return s.tracker.len()
}

// Addr returns the bound address.
func (s *SocketServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
