package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tether-io/tether-go/pkg/log"
	"github.com/tether-io/tether-go/pkg/version"
)

const (
	closeNormal      = websocket.CloseNormalClosure
	controlWriteWait = time.Second
)

// wsCodec carries frames as WebSocket messages.
type wsCodec struct {
	ws           *websocket.Conn
	reqPath      string
	writeTimeout time.Duration
}

func (w *wsCodec) readFrame() (Frame, error) {
	mt, data, err := w.ws.ReadMessage()
	if err != nil {
		return Frame{}, mapWebSocketError(err)
	}
	if mt == websocket.BinaryMessage {
		return BinaryFrame(data), nil
	}
	return Frame{Type: FrameText, Data: data}, nil
}

func (w *wsCodec) writeFrame(f Frame) error {
	if w.writeTimeout > 0 {
		_ = w.ws.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	}
	mt := websocket.TextMessage
	if f.Type == FrameBinary {
		mt = websocket.BinaryMessage
	}
	return w.ws.WriteMessage(mt, f.Data)
}

func (w *wsCodec) writeControl(kind log.ControlMsgType, payload []byte) error {
	deadline := time.Now().Add(controlWriteWait)
	switch kind {
	case log.ControlMsgPing:
		return w.ws.WriteControl(websocket.PingMessage, payload, deadline)
	case log.ControlMsgPong:
		return w.ws.WriteControl(websocket.PongMessage, payload, deadline)
	case log.ControlMsgClose:
		return w.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeNormal, ""), deadline)
	default:
		return ErrUnsupported
	}
}

func (w *wsCodec) close() error        { return w.ws.Close() }
func (w *wsCodec) remoteAddr() net.Addr { return w.ws.RemoteAddr() }
func (w *wsCodec) path() string         { return w.reqPath }

// mapWebSocketError turns a close frame into *CloseError. An abnormal
// closure (1006, the socket dropped without a close frame) stays an I/O
// error, and an exceeded read limit becomes a protocol error.
func mapWebSocketError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.CloseAbnormalClosure {
			return err
		}
		return &CloseError{Code: ce.Code, Text: ce.Text}
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return protocolError(fmt.Errorf("%w: %w", ErrMessageTooLarge, err))
	}
	return err
}

// newWebSocketConn wraps an upgraded connection. Pings from the peer are
// answered and pongs feed the keep-alive.
func newWebSocketConn(ws *websocket.Conn, reqPath string, maxFrame int, writeTimeout time.Duration, opts connOptions) *conn {
	ws.SetReadLimit(int64(maxFrame))
	c := newConn(&wsCodec{ws: ws, reqPath: reqPath, writeTimeout: writeTimeout}, opts)

	ws.SetPingHandler(func(data string) error {
		c.traceControl(log.ControlMsgPing, log.DirectionIn, nil)
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWriteWait))
		if err == nil {
			c.traceControl(log.ControlMsgPong, log.DirectionOut, nil)
			return nil
		}
		var ne net.Error
		if errors.Is(err, websocket.ErrCloseSent) || (errors.As(err, &ne) && ne.Timeout()) {
			return nil
		}
		return err
	})
	ws.SetPongHandler(func(data string) error {
		c.traceControl(log.ControlMsgPong, log.DirectionIn, nil)
		c.mu.Lock()
		ka := c.keepAlive
		c.mu.Unlock()
		if seq, ok := decodePingSeq([]byte(data)); ok && ka != nil {
			ka.PongReceived(seq)
		}
		return nil
	})
	defaultClose := ws.CloseHandler()
	ws.SetCloseHandler(func(code int, text string) error {
		c.traceControl(log.ControlMsgClose, log.DirectionIn, &code)
		return defaultClose(code, text)
	})
	return c
}

// WebSocketDialer dials ws:// and wss:// endpoints. Dial returns only after
// the upgrade handshake has completed.
type WebSocketDialer struct {
	cfg      DialerConfig
	opts     connOptions
	dialer   *websocket.Dialer
	ctx      context.Context
	cancel   context.CancelFunc
	released atomic.Bool
}

// NewWebSocketDialer creates a dialer for cfg.URL.
func NewWebSocketDialer(cfg DialerConfig) (*WebSocketDialer, error) {
	if cfg.URL == "" {
		return nil, errors.New("transport: websocket dialer requires a URL")
	}
	cfg.applyDefaults()

	pipeline, err := buildPipeline(nil, cfg.MaxFrameSize,
		FrameTracer{Logger: cfg.ProtocolLogger, Role: log.RoleClient, Endpoint: cfg.URL}, cfg.Stages)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketDialer{
		cfg: cfg,
		opts: connOptions{
			role:           log.RoleClient,
			endpoint:       cfg.URL,
			pipeline:       pipeline,
			protoLog:       cfg.ProtocolLogger,
			logger:         cfg.Logger,
			outboundBuffer: cfg.OutboundBuffer,
			closeTimeout:   cfg.CloseTimeout,
			keepAlive:      cfg.KeepAlive,
		},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.ConnectTimeout,
			TLSClientConfig:  cfg.TLS,
		},
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Endpoint returns the dialed URL.
func (d *WebSocketDialer) Endpoint() string {
	return d.cfg.URL
}

// Dial connects and performs the upgrade handshake. A refused or
// unreachable endpoint is returned as is; a failed upgrade wraps
// ErrHandshake.
func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	if d.released.Load() {
		return nil, ErrReleased
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ConnectTimeout)
	defer cancel()
	stop := context.AfterFunc(d.ctx, cancel)
	defer stop()

	ws, resp, err := d.dialer.DialContext(ctx, d.cfg.URL, d.cfg.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil || errors.Is(err, websocket.ErrBadHandshake) {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			return nil, fmt.Errorf("%w: upgrade %s (status %d): %w", ErrHandshake, d.cfg.URL, status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", d.cfg.URL, err)
	}

	if d.released.Load() {
		ws.Close()
		return nil, ErrReleased
	}
	return newWebSocketConn(ws, "", d.cfg.MaxFrameSize, d.cfg.WriteTimeout, d.opts), nil
}

// Release aborts in-flight dials and refuses new ones.
func (d *WebSocketDialer) Release() error {
	if d.released.CompareAndSwap(false, true) {
		d.cancel()
	}
	return nil
}

// WebSocketServer upgrades HTTP requests on one path to WebSocket
// connections.
type WebSocketServer struct {
	cfg      ServerConfig
	opts     connOptions
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
	closed   bool

	tracker connTracker
}

// NewWebSocketServer creates a WebSocketServer for cfg.Address and cfg.Path.
func NewWebSocketServer(cfg ServerConfig) (*WebSocketServer, error) {
	cfg.applyDefaults()

	pipeline, err := buildPipeline(nil, cfg.MaxFrameSize,
		FrameTracer{Logger: cfg.ProtocolLogger, Role: log.RoleServer, Endpoint: cfg.Address}, cfg.Stages)
	if err != nil {
		return nil, err
	}

	return &WebSocketServer{
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
			keepAlive:      cfg.KeepAlive,
		},
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.HandshakeTimeout,
			CheckOrigin:      cfg.CheckOrigin,
		},
	}, nil
}

// Listen binds the listening socket. Calling it again after a successful
// bind is a no-op.
func (s *WebSocketServer) Listen() error {
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
	s.listener = ln
	return nil
}

// Serve runs the HTTP server until Close.
func (s *WebSocketServer) Serve(h Handler) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	if s.listener == nil {
		s.mu.Unlock()
		return errors.New("transport: Serve called before Listen")
	}
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, func(w http.ResponseWriter, r *http.Request) {
		s.upgrade(w, r, h)
	})
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: s.cfg.HandshakeTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.httpSrv = srv
	ln := s.listener
	s.tracker.wg.Add(1)
	s.mu.Unlock()
	defer s.tracker.wg.Done()

	var err error
	if s.cfg.TLS != nil {
		srv.TLSConfig = s.cfg.TLS
		err = srv.ServeTLS(ln, "", "")
	} else {
		err = srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *WebSocketServer) upgrade(w http.ResponseWriter, r *http.Request, h Handler) {
	s.tracker.wg.Add(1)
	defer s.tracker.wg.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error response.
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newWebSocketConn(ws, r.URL.Path, s.cfg.MaxFrameSize, s.cfg.WriteTimeout, s.opts)
	if !s.tracker.add(c) {
		ws.Close()
		return
	}
	defer s.tracker.remove(c)

	attrs := []any{"conn", c.ID(), "remote", r.RemoteAddr, "path", r.URL.Path}
	if v, err := version.FromUserAgent(r.UserAgent()); err == nil {
		attrs = append(attrs, "client_version", v.String())
	}
	s.logger.Debug("websocket upgraded", attrs...)

	c.Start(h)
	<-c.Done()
}

// Close stops accepting upgrades. Upgraded connections stay open.
func (s *WebSocketServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.httpSrv != nil {
		return s.httpSrv.Close()
	}
	if s.listener != nil {
		return ignoreClosed(s.listener.Close())
	}
	return nil
}

// Shutdown aborts remaining connections and waits for all goroutines.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	return s.tracker.shutdown(ctx)
}

// ConnectionCount returns the number of live connections.
func (s *WebSocketServer) ConnectionCount() int {
	return s.tracker.len()
}

// Addr returns the bound address.
func (s *WebSocketServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
