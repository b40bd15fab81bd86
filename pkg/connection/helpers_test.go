package connection_test

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tether-io/tether-go/pkg/connection"
	"github.com/tether-io/tether-go/pkg/transport"
)

// fakeConn is an in-memory transport.Conn. Tests drive its handler
// directly.
type fakeConn struct {
	id string

	mu      sync.Mutex
	handler transport.Handler
	writes  []transport.Frame
	pings   [][]byte

	active atomic.Bool
	once   sync.Once
	done   chan struct{}
}

func newFakeConn() *fakeConn {
	c := &fakeConn{id: uuid.NewString(), done: make(chan struct{})}
	c.active.Store(true)
	return c
}

func (c *fakeConn) ID() string { return c.id }
func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4242}
}
func (c *fakeConn) Path() string          { return "" }
func (c *fakeConn) Active() bool          { return c.active.Load() }
func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Start(h transport.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
	h.OnActive(c)
}

func (c *fakeConn) Write(f transport.Frame) error {
	if !c.Active() {
		return transport.ErrConnectionClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, f)
	return nil
}

func (c *fakeConn) Ping(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings = append(c.pings, p)
	return nil
}

func (c *fakeConn) Close() error      { c.end(nil); return nil }
func (c *fakeConn) Disconnect()       { c.end(nil) }
func (c *fakeConn) Abort(cause error) { c.end(cause) }

// end simulates the connection going away with cause.
func (c *fakeConn) end(cause error) {
	c.once.Do(func() {
		c.active.Store(false)
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h.OnInactive(c, cause)
		}
		close(c.done)
	})
}

func (c *fakeConn) deliver(f transport.Frame) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h.OnFrame(c, f)
}

func (c *fakeConn) written() []transport.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transport.Frame(nil), c.writes...)
}

// fakeDialer hands out fakeConns. failures makes the first n dials fail
// with err; a non-nil gate makes Dial wait for it or for ctx.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	err      error
	gate     chan struct{}
	conns    []*fakeConn
	dials    atomic.Int32
	released atomic.Bool
}

func refused() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: fmt.Errorf("connection refused")}
}

func (d *fakeDialer) Dial(ctx context.Context) (transport.Conn, error) {
	d.dials.Add(1)
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures != 0 {
		if d.failures > 0 {
			d.failures--
		}
		return nil, d.err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) Endpoint() string { return "fake:0" }

func (d *fakeDialer) Release() error {
	d.released.Store(true)
	return nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// alwaysFail returns a dialer whose every dial is refused.
func alwaysFail() *fakeDialer {
	return &fakeDialer{failures: -1, err: refused()}
}

type failure struct {
	code  connection.ErrorCode
	msg   string
	cause error
}

// clientRecorder is a ClientListener that records every callback.
type clientRecorder struct {
	connecting   atomic.Int32
	connected    atomic.Int32
	failed       chan failure
	disconnected chan bool
	data         chan connection.Command
}

func newClientRecorder() *clientRecorder {
	return &clientRecorder{
		failed:       make(chan failure, 64),
		disconnected: make(chan bool, 16),
		data:         make(chan connection.Command, 64),
	}
}

func (r *clientRecorder) OnConnecting() { r.connecting.Add(1) }
func (r *clientRecorder) OnConnected()  { r.connected.Add(1) }
func (r *clientRecorder) OnFailed(code connection.ErrorCode, msg string, cause error) {
	r.failed <- failure{code, msg, cause}
}
func (r *clientRecorder) OnDisconnected(byRemote bool)         { r.disconnected <- byRemote }
func (r *clientRecorder) OnReceivedData(cmd connection.Command) { r.data <- cmd }

func (r *clientRecorder) waitFailed(t *testing.T) failure {
	t.Helper()
	select {
	case f := <-r.failed:
		return f
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for OnFailed")
		return failure{}
	}
}

func (r *clientRecorder) waitDisconnected(t *testing.T) bool {
	t.Helper()
	select {
	case b := <-r.disconnected:
		return b
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for OnDisconnected")
		return false
	}
}

func (r *clientRecorder) waitData(t *testing.T) connection.Command {
	t.Helper()
	select {
	case c := <-r.data:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for OnReceivedData")
		return nil
	}
}

// noFailure asserts no OnFailed arrives within d.
func (r *clientRecorder) noFailure(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case f := <-r.failed:
		t.Fatalf("unexpected OnFailed(%v, %q, %v)", f.code, f.msg, f.cause)
	case <-time.After(d):
	}
}

// serverRecorder is a ServerListener that records every callback.
type serverRecorder struct {
	started      atomic.Int32
	stopped      atomic.Int32
	startFailed  chan connection.ErrorCode
	connected    chan connection.PeerInfo
	disconnected chan connection.PeerInfo
	peerFailed   chan connection.ErrorCode
	data         chan received
}

type received struct {
	peer   connection.PeerInfo
	cmd    connection.Command
	action string
}

func newServerRecorder() *serverRecorder {
	return &serverRecorder{
		startFailed:  make(chan connection.ErrorCode, 16),
		connected:    make(chan connection.PeerInfo, 16),
		disconnected: make(chan connection.PeerInfo, 16),
		peerFailed:   make(chan connection.ErrorCode, 16),
		data:         make(chan received, 64),
	}
}

func (r *serverRecorder) OnStarted() { r.started.Add(1) }
func (r *serverRecorder) OnStopped() { r.stopped.Add(1) }
func (r *serverRecorder) OnStartFailed(code connection.ErrorCode, _ string) {
	r.startFailed <- code
}
func (r *serverRecorder) OnClientConnected(p connection.PeerInfo)    { r.connected <- p }
func (r *serverRecorder) OnClientDisconnected(p connection.PeerInfo) { r.disconnected <- p }
func (r *serverRecorder) OnReceivedData(p connection.PeerInfo, cmd connection.Command, action string) {
	r.data <- received{p, cmd, action}
}
func (r *serverRecorder) OnPeerFailed(_ connection.PeerInfo, code connection.ErrorCode, _ string, _ error) {
	r.peerFailed <- code
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}
