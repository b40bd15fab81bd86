package transport

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"
)

// Keep-alive defaults.
const (
	DefaultPingInterval   = 30 * time.Second
	DefaultPongTimeout    = 5 * time.Second
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures WebSocket liveness probing. A zero
// PingInterval disables it.
type KeepAliveConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// Enabled reports whether pings should be sent.
func (c KeepAliveConfig) Enabled() bool {
	return c.PingInterval > 0
}

// DetectionDelay is the longest a dead peer can go unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// KeepAlive sends sequenced pings and calls onTimeout after too many of
// them went unanswered.
type KeepAlive struct {
	config    KeepAliveConfig
	sendPing  func(seq uint32) error
	onTimeout func()
	logger    *slog.Logger

	mu          sync.Mutex
	seq         uint32
	pending     bool
	lastPing    time.Time
	lastPong    time.Time
	lastRTT     time.Duration
	missedPongs int
	running     bool
	stopCh      chan struct{}

	pongCh chan uint32
}

// NewKeepAlive creates a KeepAlive. Zero config fields take defaults.
func NewKeepAlive(config KeepAliveConfig, sendPing func(seq uint32) error, onTimeout func()) *KeepAlive {
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = DefaultPongTimeout
	}
	if config.MaxMissedPongs <= 0 {
		config.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return &KeepAlive{
		config:    config,
		sendPing:  sendPing,
		onTimeout: onTimeout,
		logger:    slog.Default(),
		pongCh:    make(chan uint32, 1),
	}
}

// SetLogger sets the logger for send failures. Call it before Start.
func (ka *KeepAlive) SetLogger(logger *slog.Logger) {
	if logger != nil {
		ka.logger = logger
	}
}

// Start launches the probing goroutine. It stops on Stop, on ctx
// cancellation or after reporting a timeout.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.running {
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	go ka.loop(ctx, ka.stopCh)
}

// Stop ends probing. Safe to call more than once.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// Running reports whether probing is active.
func (ka *KeepAlive) Running() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// PongReceived records the pong for seq. Never blocks.
func (ka *KeepAlive) PongReceived(seq uint32) {
	select {
	case ka.pongCh <- seq:
	default:
	}
}

// KeepAliveStats is a snapshot of probing state.
type KeepAliveStats struct {
	Sequence    uint32
	LastPing    time.Time
	LastPong    time.Time
	LastRTT     time.Duration
	MissedPongs int
}

// Stats returns a snapshot of probing state.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return KeepAliveStats{
		Sequence:    ka.seq,
		LastPing:    ka.lastPing,
		LastPong:    ka.lastPong,
		LastRTT:     ka.lastRTT,
		MissedPongs: ka.missedPongs,
	}
}

func (ka *KeepAlive) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	ka.ping()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case seq := <-ka.pongCh:
			ka.pong(seq)
		case <-ticker.C:
			if ka.expired() {
				ka.mu.Lock()
				ka.running = false
				ka.mu.Unlock()
				if ka.onTimeout != nil {
					ka.onTimeout()
				}
				return
			}
			ka.ping()
		}
	}
}

func (ka *KeepAlive) ping() {
	ka.mu.Lock()
	ka.seq++
	seq := ka.seq
	ka.pending = true
	ka.lastPing = time.Now()
	ka.mu.Unlock()

	// A failed send is left to the pong timeout.
	if err := ka.sendPing(seq); err != nil {
		ka.logger.Debug("keep-alive ping failed", "seq", seq, "error", err)
	}
}

func (ka *KeepAlive) pong(seq uint32) {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	now := time.Now()
	ka.lastPong = now
	if ka.pending && seq == ka.seq {
		ka.pending = false
		ka.missedPongs = 0
		ka.lastRTT = now.Sub(ka.lastPing)
	}
}

// expired counts an overdue ping as missed and reports whether the
// miss limit was reached.
func (ka *KeepAlive) expired() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.pending && time.Since(ka.lastPing) >= ka.config.PongTimeout {
		ka.pending = false
		ka.missedPongs++
	}
	return ka.missedPongs >= ka.config.MaxMissedPongs
}

func encodePingSeq(seq uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, seq)
	return b
}

func decodePingSeq(b []byte) (uint32, bool) {
	if len(b) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}
