package connection

import (
	"math/rand"
	"sync"
	"time"
)

// RetryStrategy decides how often and how fast a client reconnects after
// a failure. Attempts are numbered from 1.
type RetryStrategy interface {
	// MaxAttempts is the number of automatic reconnects allowed in one
	// failure episode.
	MaxAttempts() int

	// DelayForAttempt returns the wait before reconnect attempt n.
	DelayForAttempt(n int) time.Duration
}

// Default constant retry policy.
const (
	DefaultRetryAttempts = 5
	DefaultRetryDelay    = 5 * time.Second
)

// ConstantRetry waits the same Delay before each of Attempts reconnects.
type ConstantRetry struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetry returns the default policy: 5 attempts, 5 seconds apart.
func DefaultRetry() ConstantRetry {
	return ConstantRetry{Attempts: DefaultRetryAttempts, Delay: DefaultRetryDelay}
}

func (r ConstantRetry) MaxAttempts() int { return r.Attempts }

func (r ConstantRetry) DelayForAttempt(int) time.Duration { return r.Delay }

// Backoff defaults.
const (
	// InitialBackoff is the delay before the first reconnect.
	InitialBackoff = 1 * time.Second

	// MaxBackoff caps the delay.
	MaxBackoff = 60 * time.Second

	// BackoffMultiplier is the growth factor between attempts.
	BackoffMultiplier = 2.0

	// JitterFactor is the maximum jitter as a fraction of the base delay.
	JitterFactor = 0.25
)

// BackoffConfig customizes a BackoffRetry. Zero fields take the defaults.
// A negative Attempts disables retries and a negative Jitter disables
// jitter.
type BackoffConfig struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// BackoffRetry grows the delay exponentially up to a ceiling and adds
// random jitter so that many clients do not reconnect in lockstep:
//
//	delay(n) = min(Initial * Multiplier^(n-1), Max) + random(0, base * Jitter)
type BackoffRetry struct {
	attempts   int
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBackoffRetry creates a BackoffRetry.
func NewBackoffRetry(cfg BackoffConfig) *BackoffRetry {
	switch {
	case cfg.Attempts < 0:
		cfg.Attempts = 0
	case cfg.Attempts == 0:
		cfg.Attempts = DefaultRetryAttempts
	}
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	switch {
	case cfg.Jitter < 0:
		cfg.Jitter = 0
	case cfg.Jitter == 0:
		cfg.Jitter = JitterFactor
	}

	return &BackoffRetry{
		attempts:   cfg.Attempts,
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *BackoffRetry) MaxAttempts() int { return b.attempts }

// DelayForAttempt returns the jittered delay for attempt n.
func (b *BackoffRetry) DelayForAttempt(n int) time.Duration {
	return b.addJitter(b.Base(n))
}

// Base returns the delay for attempt n without jitter.
func (b *BackoffRetry) Base(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(b.initial)
	for i := 1; i < n; i++ {
		d *= b.multiplier
		if d >= float64(b.max) {
			return b.max
		}
	}
	return time.Duration(d)
}

func (b *BackoffRetry) addJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	b.mu.Lock()
	f := b.rng.Float64()
	b.mu.Unlock()
	return d + time.Duration(float64(d)*b.jitter*f)
}
