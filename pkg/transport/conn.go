package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tether-io/tether-go/pkg/log"
)

// Connection defaults.
const (
	DefaultOutboundBuffer = 256
	DefaultCloseTimeout   = 5 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
)

// codec moves frames over one underlying connection. readFrame is only
// called from the read loop and writeFrame only from the write pump;
// writeControl may be called concurrently with both.
type codec interface {
	readFrame() (Frame, error)
	writeFrame(f Frame) error
	writeControl(kind log.ControlMsgType, payload []byte) error
	close() error
	remoteAddr() net.Addr
	path() string
}

// connOptions are shared by every connection a dialer or server creates.
type connOptions struct {
	role           log.Role
	endpoint       string
	pipeline       *Pipeline
	protoLog       log.Logger
	logger         *slog.Logger
	outboundBuffer int
	closeTimeout   time.Duration
	keepAlive      KeepAliveConfig
}

// conn is the Conn implementation shared by socket and WebSocket modes.
// It owns a read loop, a write pump draining a bounded outbound queue,
// and optionally a KeepAlive.
type conn struct {
	id    string
	codec codec
	opts  connOptions

	out       chan Frame
	active    atomic.Bool
	closingCh chan struct{}
	activated chan struct{}
	pumpDone  chan struct{}
	readDone  chan struct{}
	done      chan struct{}

	mu        sync.Mutex
	handler   Handler
	started   bool
	closing   bool
	graceful  bool
	cause     error
	closeErr  error
	keepAlive *KeepAlive
}

func newConn(c codec, opts connOptions) *conn {
	if opts.outboundBuffer <= 0 {
		opts.outboundBuffer = DefaultOutboundBuffer
	}
	if opts.closeTimeout <= 0 {
		opts.closeTimeout = DefaultCloseTimeout
	}
	if opts.pipeline == nil {
		opts.pipeline = &Pipeline{}
	}
	opts.protoLog = log.OrNoop(opts.protoLog)
	if opts.logger == nil {
		opts.logger = slog.Default()
	}

	cn := &conn{
		id:        uuid.New().String(),
		codec:     c,
		opts:      opts,
		out:       make(chan Frame, opts.outboundBuffer),
		closingCh: make(chan struct{}),
		activated: make(chan struct{}),
		pumpDone:  make(chan struct{}),
		readDone:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	cn.active.Store(true)
	return cn
}

func (c *conn) ID() string           { return c.id }
func (c *conn) RemoteAddr() net.Addr { return c.codec.remoteAddr() }
func (c *conn) Path() string         { return c.codec.path() }
func (c *conn) Active() bool         { return c.active.Load() }

func (c *conn) Done() <-chan struct{} { return c.done }

// Start attaches h and launches the I/O loops. h.OnActive runs on the
// calling goroutine before any frame is delivered.
func (c *conn) Start(h Handler) {
	c.mu.Lock()
	if c.started || c.closing {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.handler = h
	if c.opts.keepAlive.Enabled() {
		c.keepAlive = NewKeepAlive(c.opts.keepAlive,
			func(seq uint32) error { return c.Ping(encodePingSeq(seq)) },
			func() { c.Abort(ErrKeepAliveTimeout) },
		)
		c.keepAlive.SetLogger(c.opts.logger.With("conn", c.id))
	}
	ka := c.keepAlive
	c.mu.Unlock()

	c.traceState("", "CONNECTED", "")

	go c.writePump()
	go c.readLoop()

	h.OnActive(c)
	close(c.activated)

	if ka != nil {
		ka.Start(context.Background())
	}
}

// Write runs the outbound stages and enqueues f without blocking.
func (c *conn) Write(f Frame) error {
	if !c.active.Load() {
		return ErrConnectionClosed
	}
	f, err := c.opts.pipeline.runOutbound(c, f)
	if err != nil {
		return err
	}
	select {
	case <-c.closingCh:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.out <- f:
		return nil
	default:
		return ErrOutboundFull
	}
}

// Ping sends a control ping carrying payload.
func (c *conn) Ping(payload []byte) error {
	if !c.active.Load() {
		return ErrConnectionClosed
	}
	if err := c.codec.writeControl(log.ControlMsgPing, payload); err != nil {
		return err
	}
	c.traceControl(log.ControlMsgPing, log.DirectionOut, nil)
	return nil
}

// Close flushes queued frames, performs the closing handshake where the
// mode has one and waits for the handler to be notified. It must not be
// called from a Handler callback of the same connection; use Disconnect
// there.
func (c *conn) Close() error {
	c.shutdown(nil, true)
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Disconnect begins the same graceful close as Close without waiting.
func (c *conn) Disconnect() {
	c.shutdown(nil, true)
}

// Abort tears the connection down immediately and reports cause.
func (c *conn) Abort(cause error) {
	c.shutdown(cause, false)
}

func (c *conn) shutdown(cause error, graceful bool) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.cause = cause
	c.graceful = graceful
	started := c.started
	c.mu.Unlock()

	c.active.Store(false)
	close(c.closingCh)

	if !started {
		err := c.codec.close()
		c.mu.Lock()
		c.closeErr = ignoreClosed(err)
		c.mu.Unlock()
		close(c.done)
		return
	}
	go c.finish()
}

func (c *conn) finish() {
	c.mu.Lock()
	ka, graceful, cause, h := c.keepAlive, c.graceful, c.cause, c.handler
	c.mu.Unlock()

	if ka != nil {
		ka.Stop()
	}
	<-c.pumpDone

	if graceful {
		if err := c.codec.writeControl(log.ControlMsgClose, nil); err == nil {
			code := closeNormal
			c.traceControl(log.ControlMsgClose, log.DirectionOut, &code)
			select {
			case <-c.readDone:
			case <-time.After(c.opts.closeTimeout):
			}
		}
	}
	err := ignoreClosed(c.codec.close())
	<-c.readDone

	c.mu.Lock()
	c.closeErr = err
	c.mu.Unlock()

	c.traceState("CONNECTED", "DISCONNECTED", reasonOf(cause))
	h.OnInactive(c, cause)
	close(c.done)
}

func (c *conn) readLoop() {
	defer close(c.readDone)

	delivered := false
	for {
		f, err := c.codec.readFrame()
		if err != nil {
			if IsRemoteClose(err) || errors.Is(err, ErrProtocol) {
				c.Abort(err)
			} else {
				c.Abort(fmt.Errorf("read: %w", err))
			}
			return
		}
		f, err = c.opts.pipeline.runInbound(c, f)
		if err != nil {
			c.Abort(protocolError(err))
			return
		}
		if !delivered {
			select {
			case <-c.activated:
			case <-c.closingCh:
				return
			}
			delivered = true
		}
		select {
		case <-c.closingCh:
			// Drop frames that arrive while shutting down.
			continue
		default:
		}
		c.handler.OnFrame(c, f)
	}
}

func (c *conn) writePump() {
	defer close(c.pumpDone)

	for {
		select {
		case f := <-c.out:
			if !c.writeOne(f) {
				return
			}
		case <-c.closingCh:
			c.mu.Lock()
			graceful := c.graceful
			c.mu.Unlock()
			if graceful {
				c.flush()
			}
			return
		}
	}
}

func (c *conn) flush() {
	for {
		select {
		case f := <-c.out:
			if !c.writeOne(f) {
				return
			}
		default:
			return
		}
	}
}

// writeOne writes f and reports whether the pump should continue.
// Frames the codec refuses are dropped; I/O errors abort the connection.
func (c *conn) writeOne(f Frame) bool {
	err := c.codec.writeFrame(f)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrMessageEmpty), errors.Is(err, ErrMessageTooLarge):
		c.opts.logger.Warn("frame dropped", "conn", c.id, "size", len(f.Data), "error", err)
		return true
	default:
		c.Abort(fmt.Errorf("write: %w", err))
		return false
	}
}

func (c *conn) traceState(oldState, newState, reason string) {
	c.opts.protoLog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    c.opts.role,
		RemoteAddr:   addrString(c.RemoteAddr()),
		Endpoint:     c.opts.endpoint,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (c *conn) traceControl(kind log.ControlMsgType, dir log.Direction, closeCode *int) {
	c.opts.protoLog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		LocalRole:    c.opts.role,
		RemoteAddr:   addrString(c.RemoteAddr()),
		Endpoint:     c.opts.endpoint,
		ControlMsg:   &log.ControlMsgEvent{Type: kind, CloseCode: closeCode},
	})
}

func reasonOf(err error) string {
	if err == nil {
		return "local close"
	}
	return err.Error()
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
