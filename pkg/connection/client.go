package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/tether-io/tether-go/pkg/log"
	"github.com/tether-io/tether-go/pkg/transport"
)

// ClientConfig configures a ClientManager.
type ClientConfig struct {
	// Dialer establishes the connection. Required.
	Dialer transport.Dialer

	// Listener receives lifecycle notifications. Nil discards them.
	Listener ClientListener

	// Retry governs automatic reconnects (default DefaultRetry()).
	Retry RetryStrategy

	Logger         *slog.Logger
	ProtocolLogger log.Logger

	// Endpoint labels logs. Defaults to Dialer.Endpoint().
	Endpoint string
}

// ClientManager supervises one outbound connection: it connects,
// reconnects according to its RetryStrategy, sends commands and tears
// the connection down on request.
//
// All state lives behind a single mutex. Listener callbacks are invoked
// after the mutex is released.
type ClientManager struct {
	dialer   transport.Dialer
	listener ClientListener
	retry    RetryStrategy
	logger   *slog.Logger
	protoLog log.Logger
	endpoint string

	// ctx lives until Release and bounds every dial and retry.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      ClientState
	conn       transport.Conn
	generation uint64
	retryCount int
	manual     bool
	released   bool
	pending    *retryTask
	dialCancel context.CancelFunc
	attempt    chan struct{}
}

// retryTask is one scheduled reconnect. It is current while
// ClientManager.pending points at it.
type retryTask struct {
	cancel context.CancelFunc
}

// failure is a listener notification computed under the lock and
// delivered after it is released.
type failure struct {
	code    ErrorCode
	message string
	cause   error
}

// NewClientManager creates a ClientManager in StateUninitialized.
func NewClientManager(cfg ClientConfig) (*ClientManager, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("connection: client requires a dialer")
	}
	if cfg.Listener == nil {
		cfg.Listener = ClientListenerFuncs{}
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = cfg.Dialer.Endpoint()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ClientManager{
		dialer:   cfg.Dialer,
		listener: cfg.Listener,
		retry:    cfg.Retry,
		logger:   cfg.Logger.With("endpoint", cfg.Endpoint),
		protoLog: log.OrNoop(cfg.ProtocolLogger),
		endpoint: cfg.Endpoint,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// State returns the current state.
func (m *ClientManager) State() ClientState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RetryCount returns the number of automatic reconnects in the current
// failure episode.
func (m *ClientManager) RetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCount
}

// Released reports whether Release has been called.
func (m *ClientManager) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// Connect establishes the connection and blocks until the attempt
// succeeds or fails. A call while another attempt is in flight waits for
// that attempt instead of dialing again. Connected, Disconnecting and
// Releasing return immediately. Cancelling ctx aborts the dial.
//
// An explicit Connect cancels any pending automatic reconnect and starts
// a new failure episode.
func (m *ClientManager) Connect(ctx context.Context) ClientState {
	return m.connect(ctx, nil)
}

// connect runs one attempt. task is nil for application calls and the
// scheduled retryTask for automatic reconnects.
func (m *ClientManager) connect(ctx context.Context, task *retryTask) ClientState {
	m.mu.Lock()
	if task != nil && m.pending != task {
		// Cancelled or superseded while the timer was firing.
		s := m.state
		m.mu.Unlock()
		return s
	}
	if m.released {
		m.mu.Unlock()
		m.notifyFailure(&failure{CodeAlreadyReleased, "client released", ErrReleased})
		return StateUninitialized
	}

	switch m.state {
	case StateConnecting:
		wait := m.attempt
		m.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
		}
		return m.State()
	case StateConnected, StateDisconnecting, StateReleasing:
		s := m.state
		m.mu.Unlock()
		return s
	}

	if task == nil {
		m.cancelRetryLocked()
		m.retryCount = 0
		m.manual = false
	} else {
		m.pending = nil
	}
	m.generation++
	gen := m.generation
	dialCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.ctx, cancel)
	m.dialCancel = cancel
	done := make(chan struct{})
	m.attempt = done
	m.setStateLocked(StateConnecting, "")
	m.mu.Unlock()

	defer close(done)
	defer stop()
	defer cancel()

	m.listener.OnConnecting()
	m.logger.Debug("connecting")

	c, err := m.dialer.Dial(dialCtx)

	m.mu.Lock()
	if gen != m.generation || m.state != StateConnecting {
		// Disconnected or released while dialing.
		s := m.state
		m.mu.Unlock()
		if c != nil {
			c.Abort(ErrReleased)
		}
		return s
	}
	m.dialCancel = nil

	if err != nil {
		m.setStateLocked(StateFailed, err.Error())
		f := &failure{code: dialErrorCode(err), message: "connect failed", cause: err}
		if ctx.Err() != nil {
			// The caller gave up; no automatic reconnect.
			f.message = "connect cancelled"
		} else {
			f = m.retryLocked(f)
		}
		s := m.state
		m.mu.Unlock()
		m.notifyFailure(f)
		return s
	}

	m.conn = c
	m.retryCount = 0
	m.manual = false
	m.setStateLocked(StateConnected, "")
	m.mu.Unlock()

	m.logger.Info("connected", "conn", c.ID())

	// A Release or DisconnectManually after the unlock above already
	// closed c; the listener must not hear of it.
	m.mu.Lock()
	current := gen == m.generation && m.state == StateConnected
	s := m.state
	m.mu.Unlock()
	if !current {
		return s
	}

	m.listener.OnConnected()
	c.Start(&clientHandler{m: m, gen: gen})
	return StateConnected
}

// ExecuteCommand enqueues cmd on the connection. It returns false, and
// logs why, when the command is malformed or there is no writable
// connection. It never blocks on I/O.
func (m *ClientManager) ExecuteCommand(cmd Command, opts ...CommandOption) bool {
	o := applyCommandOptions(opts)
	if err := validateCommand(cmd); err != nil {
		m.logger.Warn("command rejected", "error", err)
		return false
	}

	m.mu.Lock()
	c, state := m.conn, m.state
	m.mu.Unlock()

	if c == nil || state != StateConnected || !c.Active() {
		m.logger.Warn("command not sent", "state", state, "error", ErrNotConnected)
		return false
	}
	if err := c.Write(commandFrame(cmd, o)); err != nil {
		m.logger.Warn("command not sent", "conn", c.ID(), "error", err)
		return false
	}
	if o.showLog {
		m.logger.Debug("command sent", append([]any{"conn", c.ID()}, o.logAttrs(cmd)...)...)
	}
	return true
}

// DisconnectManually closes the connection without triggering a
// reconnect and waits until it is closed. It is a no-op in
// Disconnected, Uninitialized, Disconnecting and Releasing.
func (m *ClientManager) DisconnectManually() ClientState {
	m.mu.Lock()
	switch m.state {
	case StateDisconnected, StateUninitialized, StateDisconnecting, StateReleasing:
		s := m.state
		m.mu.Unlock()
		return s
	}
	m.manual = true
	m.cancelRetryLocked()
	m.retryCount = 0
	m.generation++
	c, dialCancel := m.conn, m.dialCancel
	m.conn, m.dialCancel = nil, nil
	m.setStateLocked(StateDisconnecting, "manual disconnect")
	m.mu.Unlock()

	if dialCancel != nil {
		dialCancel()
	}
	if c != nil {
		if err := c.Close(); err != nil {
			m.logger.Warn("close failed", "conn", c.ID(), "error", err)
		}
	}

	m.mu.Lock()
	if m.state == StateDisconnecting {
		m.setStateLocked(StateDisconnected, "manual disconnect")
	}
	s := m.state
	m.mu.Unlock()

	m.logger.Info("disconnected", "by_remote", false)
	m.listener.OnDisconnected(false)
	return s
}

// Release tears the client down for good: it cancels pending reconnects
// and in-flight dials, closes the connection and releases the dialer.
// Teardown errors are logged, never returned. It returns false when the
// client is Uninitialized or already Releasing.
func (m *ClientManager) Release() bool {
	m.mu.Lock()
	if m.state == StateUninitialized || m.state == StateReleasing {
		m.mu.Unlock()
		return false
	}
	m.released = true
	m.manual = true
	m.cancelRetryLocked()
	m.retryCount = 0
	m.generation++
	c := m.conn
	m.conn, m.dialCancel = nil, nil
	m.setStateLocked(StateReleasing, "release")
	m.mu.Unlock()

	m.cancel()

	var errs error
	if c != nil {
		if err := c.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	if err := m.dialer.Release(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("release dialer: %w", err))
	}
	for _, err := range multierr.Errors(errs) {
		m.logger.Warn("release step failed", "error", err)
	}

	m.mu.Lock()
	m.setStateLocked(StateUninitialized, "released")
	m.mu.Unlock()

	m.logger.Info("released")
	return true
}

// retryLocked runs the retry procedure for failure f and returns the
// notification to deliver. The caller has already moved to StateFailed.
func (m *ClientManager) retryLocked(f *failure) *failure {
	if m.manual || m.released {
		return f
	}

	m.retryCount++
	maxAttempts := m.retry.MaxAttempts()
	if m.retryCount > maxAttempts {
		m.logger.Warn("giving up", "attempts", maxAttempts, "error", f.cause)
		return &failure{
			code:    CodeExceededMaxRetries,
			message: fmt.Sprintf("exceeded %d reconnect attempts", maxAttempts),
			cause:   f.cause,
		}
	}

	delay := m.retry.DelayForAttempt(m.retryCount)
	m.scheduleRetryLocked(delay)
	m.logger.Info("reconnect scheduled", "attempt", m.retryCount, "delay", delay, "error", f.cause)
	return f
}

func (m *ClientManager) scheduleRetryLocked(delay time.Duration) {
	m.cancelRetryLocked()

	ctx, cancel := context.WithCancel(m.ctx)
	task := &retryTask{cancel: cancel}
	m.pending = task

	go func() {
		defer cancel()

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		m.connect(m.ctx, task)
	}()
}

// cancelRetryLocked drops the pending reconnect. It never waits for the
// retry goroutine.
func (m *ClientManager) cancelRetryLocked() {
	if m.pending != nil {
		m.pending.cancel()
		m.pending = nil
	}
}

// connectionLost handles the end of the connection of generation gen.
func (m *ClientManager) connectionLost(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.generation || m.state != StateConnected || err == nil {
		m.mu.Unlock()
		return
	}
	m.conn = nil

	if transport.IsRemoteClose(err) {
		m.setStateLocked(StateDisconnected, err.Error())
		m.mu.Unlock()
		m.logger.Info("disconnected", "by_remote", true, "reason", err)
		m.listener.OnDisconnected(true)
		return
	}

	m.setStateLocked(StateFailed, err.Error())
	f := m.retryLocked(&failure{code: CodeSocketException, message: "connection lost", cause: err})
	m.mu.Unlock()
	m.notifyFailure(f)
}

func (m *ClientManager) notifyFailure(f *failure) {
	code := int(f.code)
	m.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerManager,
		Category:  log.CategoryError,
		LocalRole: log.RoleClient,
		Endpoint:  m.endpoint,
		Error: &log.ErrorEventData{
			Layer:   log.LayerManager,
			Message: errorMessage(f.message, f.cause),
			Code:    &code,
			Context: f.code.String(),
		},
	})
	m.logger.Warn(f.message, "code", f.code, "error", f.cause)
	m.listener.OnFailed(f.code, f.message, f.cause)
}

func (m *ClientManager) setStateLocked(s ClientState, reason string) {
	if m.state == s {
		return
	}
	old := m.state
	m.state = s
	var connID string
	if m.conn != nil {
		connID = m.conn.ID()
	}
	m.protoLog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerManager,
		Category:     log.CategoryState,
		LocalRole:    log.RoleClient,
		Endpoint:     m.endpoint,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityClient,
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})
}

// dialErrorCode classifies a dial error.
func dialErrorCode(err error) ErrorCode {
	var ne net.Error
	switch {
	case errors.Is(err, transport.ErrHandshake):
		return CodeHandshakeFailed
	case errors.Is(err, transport.ErrReleased):
		return CodeAlreadyReleased
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return CodeConnectException
	case errors.As(err, &ne):
		return CodeConnectException
	default:
		return CodeUnexpectedException
	}
}

func errorMessage(msg string, cause error) string {
	if cause == nil {
		return msg
	}
	return msg + ": " + cause.Error()
}

// clientHandler binds transport events to one connection generation.
type clientHandler struct {
	m   *ClientManager
	gen uint64
}

func (h *clientHandler) OnActive(transport.Conn) {}

func (h *clientHandler) OnFrame(_ transport.Conn, f transport.Frame) {
	h.m.mu.Lock()
	current := h.gen == h.m.generation
	h.m.mu.Unlock()
	if current {
		h.m.listener.OnReceivedData(commandFromFrame(f))
	}
}

func (h *clientHandler) OnInactive(_ transport.Conn, err error) {
	h.m.connectionLost(h.gen, err)
}
