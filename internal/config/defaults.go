package config

import (
	"time"

	"github.com/tether-io/tether-go/pkg/connection"
	"github.com/tether-io/tether-go/pkg/transport"
)

// Default values for optional configuration fields.
const (
	DefaultConnectTimeout   = transport.DefaultConnectTimeout
	DefaultFraming          = "line"
	DefaultMaxFrameSize     = transport.DefaultMaxFrameSize
	DefaultOutboundBuffer   = transport.DefaultOutboundBuffer
	DefaultServerPath       = "/"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultShutdownTimeout  = connection.DefaultShutdownTimeout
	DefaultRetryStrategy    = "constant"
	DefaultRetryAttempts    = connection.DefaultRetryAttempts
	DefaultRetryDelay       = connection.DefaultRetryDelay
	DefaultBackoffDelay     = connection.InitialBackoff
	DefaultBackoffMaxDelay  = connection.MaxBackoff
	DefaultBackoffFactor    = connection.BackoffMultiplier
	DefaultBackoffJitter    = connection.JitterFactor
	DefaultPingInterval     = transport.DefaultPingInterval
	DefaultPongTimeout      = transport.DefaultPongTimeout
	DefaultMaxMissedPongs   = transport.DefaultMaxMissedPongs
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

func (c *Config) applyDefaults() {
	// Client defaults
	if c.Client.ConnectTimeout == 0 {
		c.Client.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Client.Framing == "" {
		c.Client.Framing = DefaultFraming
	}
	if c.Client.MaxFrameSize == 0 {
		c.Client.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.Client.OutboundBuffer == 0 {
		c.Client.OutboundBuffer = DefaultOutboundBuffer
	}

	// Server defaults
	if c.Server.Path == "" {
		c.Server.Path = DefaultServerPath
	}
	if c.Server.Framing == "" {
		c.Server.Framing = DefaultFraming
	}
	if c.Server.MaxFrameSize == 0 {
		c.Server.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.Server.OutboundBuffer == 0 {
		c.Server.OutboundBuffer = DefaultOutboundBuffer
	}
	if c.Server.HandshakeTimeout == 0 {
		c.Server.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	applyRetryDefaults(&c.Retry)

	// Keep-alive defaults
	if c.KeepAlive.PingInterval == 0 {
		c.KeepAlive.PingInterval = DefaultPingInterval
	}
	if c.KeepAlive.PongTimeout == 0 {
		c.KeepAlive.PongTimeout = DefaultPongTimeout
	}
	if c.KeepAlive.MaxMissedPongs == 0 {
		c.KeepAlive.MaxMissedPongs = DefaultMaxMissedPongs
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyRetryDefaults(r *RetryConfig) {
	if r.Strategy == "" {
		r.Strategy = DefaultRetryStrategy
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = DefaultRetryAttempts
	}
	if r.Strategy != "backoff" {
		if r.Delay == 0 {
			r.Delay = DefaultRetryDelay
		}
		return
	}
	if r.Delay == 0 {
		r.Delay = DefaultBackoffDelay
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = DefaultBackoffMaxDelay
	}
	if r.Multiplier == 0 {
		r.Multiplier = DefaultBackoffFactor
	}
	if r.Jitter == 0 {
		r.Jitter = DefaultBackoffJitter
	}
}
