package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/tether-io/tether-go/pkg/log"
	"github.com/tether-io/tether-go/pkg/transport"
)

// DefaultShutdownTimeout bounds the wait for peer goroutines in Stop.
const DefaultShutdownTimeout = 10 * time.Second

// errServerStopping aborts connections accepted while Stop is running.
var errServerStopping = errors.New("server stopping")

// ServerConfig configures a ServerManager.
type ServerConfig struct {
	// Server is the listening endpoint. Required.
	Server transport.Server

	// Listener receives lifecycle notifications. Nil discards them.
	Listener ServerListener

	// ShutdownTimeout bounds Stop's wait for peer goroutines.
	ShutdownTimeout time.Duration

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// ServerManager supervises a listening endpoint and its accepted peers.
type ServerManager struct {
	server          transport.Server
	listener        ServerListener
	logger          *slog.Logger
	protoLog        log.Logger
	shutdownTimeout time.Duration

	peers *PeerSet

	// attached gates the inbound handler. Stop detaches it first so that
	// teardown callbacks only do bookkeeping.
	attached atomic.Bool

	mu       sync.Mutex
	state    ServerState
	released bool
}

// NewServerManager creates a ServerManager in ServerUninitialized.
func NewServerManager(cfg ServerConfig) (*ServerManager, error) {
	if cfg.Server == nil {
		return nil, errors.New("connection: server manager requires a server")
	}
	if cfg.Listener == nil {
		cfg.Listener = ServerListenerFuncs{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &ServerManager{
		server:          cfg.Server,
		listener:        cfg.Listener,
		logger:          cfg.Logger,
		protoLog:        log.OrNoop(cfg.ProtocolLogger),
		shutdownTimeout: cfg.ShutdownTimeout,
		peers:           NewPeerSet(),
	}, nil
}

// State returns the current state.
func (m *ServerManager) State() ServerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Addr returns the bound address, or nil before Start.
func (m *ServerManager) Addr() net.Addr {
	return m.server.Addr()
}

// Peers returns the connected peers ordered by connection time.
func (m *ServerManager) Peers() []PeerInfo {
	return m.peers.Snapshot()
}

// PeerCount returns the number of connected peers.
func (m *ServerManager) PeerCount() int {
	return m.peers.Len()
}

// Start binds the endpoint and serves until Stop. It returns nil at once
// when the server is already running, so concurrent calls bind exactly
// once. Cancelling ctx stops the server. Start must run on its own
// goroutine.
func (m *ServerManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Running() {
		m.mu.Unlock()
		return nil
	}
	if m.released {
		m.setStateLocked(ServerFailed, "released")
		m.mu.Unlock()
		m.notifyStartFailed(CodeServerReleased, "server released, cannot rebind")
		return ErrReleased
	}
	if err := m.server.Listen(); err != nil {
		m.setStateLocked(ServerFailed, err.Error())
		m.mu.Unlock()
		m.notifyStartFailed(CodeBindFailed, err.Error())
		return fmt.Errorf("bind: %w", err)
	}
	m.attached.Store(true)
	m.setStateLocked(ServerStarted, "")
	m.mu.Unlock()

	m.logger.Info("server started", "addr", m.server.Addr())
	m.listener.OnStarted()

	stop := context.AfterFunc(ctx, func() { m.Stop() })
	defer stop()

	err := m.server.Serve(&serverHandler{m: m})
	if err == nil || errors.Is(err, transport.ErrServerClosed) {
		// Stop may close the endpoint before Serve runs.
		return nil
	}

	m.mu.Lock()
	running := m.state.Running()
	if running {
		m.setStateLocked(ServerFailed, err.Error())
	}
	m.mu.Unlock()
	if running {
		m.notifyStartFailed(CodeStartUnexpected, err.Error())
	}
	return fmt.Errorf("serve: %w", err)
}

// Stop closes the endpoint and every peer. Each teardown step runs even
// when an earlier one fails; failures are logged. The server cannot be
// started again. Stop returns false when the server was never started
// or is already stopped, and must not be called from a peer callback.
func (m *ServerManager) Stop() bool {
	m.mu.Lock()
	if m.state == ServerUninitialized || m.released {
		m.mu.Unlock()
		return false
	}
	m.released = true
	m.setStateLocked(ServerUninitialized, "stopping")
	m.mu.Unlock()

	m.attached.Store(false)

	var errs error
	if err := m.server.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close listener: %w", err))
	}
	if err := m.peers.CloseAll(); err != nil {
		errs = multierr.Append(errs, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	if err := m.server.Shutdown(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("shutdown: %w", err))
	}
	cancel()
	for _, err := range multierr.Errors(errs) {
		m.logger.Warn("stop step failed", "error", err)
	}

	m.mu.Lock()
	m.setStateLocked(ServerStopped, "")
	m.mu.Unlock()

	m.logger.Info("server stopped")
	m.listener.OnStopped()
	return true
}

// ExecuteCommand sends cmd to peer, or a WebSocket ping carrying cmd's
// payload when isPing is set. It returns false when the command is
// malformed, the peer is unknown or the write is refused.
func (m *ServerManager) ExecuteCommand(peer PeerID, cmd Command, isPing bool, opts ...CommandOption) bool {
	o := applyCommandOptions(opts)
	if err := validateCommand(cmd); err != nil {
		m.logger.Warn("command rejected", "peer", peer, "error", err)
		return false
	}
	if !m.State().Running() {
		m.logger.Warn("command not sent", "peer", peer, "error", ErrNotConnected)
		return false
	}
	c, ok := m.peers.conn(peer)
	if !ok || !c.Active() {
		m.logger.Warn("command not sent", "peer", peer, "error", ErrPeerNotFound)
		return false
	}

	if isPing {
		if err := c.Ping(commandFrame(cmd, o).Data); err != nil {
			m.logger.Warn("ping not sent", "peer", peer, "error", err)
			return false
		}
		return true
	}
	if err := c.Write(commandFrame(cmd, o)); err != nil {
		m.logger.Warn("command not sent", "peer", peer, "error", err)
		return false
	}
	if o.showLog {
		m.logger.Debug("command sent", append([]any{"peer", peer}, o.logAttrs(cmd)...)...)
	}
	return true
}

// Broadcast sends cmd to every connected peer and returns how many
// accepted it.
func (m *ServerManager) Broadcast(cmd Command, opts ...CommandOption) int {
	o := applyCommandOptions(opts)
	if err := validateCommand(cmd); err != nil {
		m.logger.Warn("broadcast rejected", "error", err)
		return 0
	}
	if !m.State().Running() {
		return 0
	}

	sent := 0
	for _, e := range m.peers.entries() {
		if err := e.conn.Write(commandFrame(cmd, o)); err != nil {
			m.logger.Debug("broadcast skipped peer", "peer", e.info.ID, "error", err)
			continue
		}
		sent++
	}
	if o.showLog {
		m.logger.Debug("broadcast sent", append([]any{"peers", sent}, o.logAttrs(cmd)...)...)
	}
	return sent
}

// DisconnectPeer starts a graceful close of peer without waiting for it.
// OnClientDisconnected follows once the connection has ended.
func (m *ServerManager) DisconnectPeer(peer PeerID) bool {
	c, ok := m.peers.conn(peer)
	if !ok {
		return false
	}
	c.Disconnect()
	return true
}

func (m *ServerManager) notifyStartFailed(code ErrorCode, message string) {
	c := int(code)
	m.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerManager,
		Category:  log.CategoryError,
		LocalRole: log.RoleServer,
		Error: &log.ErrorEventData{
			Layer:   log.LayerManager,
			Message: message,
			Code:    &c,
			Context: code.String(),
		},
	})
	m.logger.Error("server start failed", "code", code, "error", message)
	m.listener.OnStartFailed(code, message)
}

func (m *ServerManager) setStateLocked(s ServerState, reason string) {
	if m.state == s {
		return
	}
	old := m.state
	m.state = s
	m.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerManager,
		Category:  log.CategoryState,
		LocalRole: log.RoleServer,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityServer,
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})
}

// peerCountChanged moves between the ClientConnected and
// ClientDisconnected sub-states while the server runs.
func (m *ServerManager) peerCountChanged(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Running() {
		return
	}
	if m.peers.Len() > 0 {
		m.setStateLocked(ServerClientConnected, reason)
	} else {
		m.setStateLocked(ServerClientDisconnected, reason)
	}
}

// serverHandler is the inbound handler every accepted connection gets.
type serverHandler struct {
	m *ServerManager
}

func (h *serverHandler) OnActive(c transport.Conn) {
	m := h.m
	if !m.attached.Load() {
		c.Abort(errServerStopping)
		return
	}
	peer := m.peers.Add(c)
	m.peerCountChanged("peer connected")
	m.logger.Info("peer connected", "peer", peer.ID, "remote", peer.RemoteAddr, "path", peer.Path)
	m.listener.OnClientConnected(peer)
}

func (h *serverHandler) OnFrame(c transport.Conn, f transport.Frame) {
	m := h.m
	if !m.attached.Load() {
		return
	}
	peer, ok := m.peers.Get(PeerID(c.ID()))
	if !ok {
		return
	}
	m.listener.OnReceivedData(peer, commandFromFrame(f), c.Path())
}

func (h *serverHandler) OnInactive(c transport.Conn, err error) {
	m := h.m
	peer, ok := m.peers.Remove(PeerID(c.ID()))
	if !ok {
		return
	}
	if !m.attached.Load() {
		return
	}
	m.peerCountChanged("peer disconnected")

	if errors.Is(err, transport.ErrProtocol) {
		m.logger.Warn("peer protocol error", "peer", peer.ID, "error", err)
		m.listener.OnPeerFailed(peer, CodePeerProtocolError, "peer closed after protocol error", err)
	}
	m.logger.Info("peer disconnected", "peer", peer.ID, "reason", err)
	m.listener.OnClientDisconnected(peer)
}
