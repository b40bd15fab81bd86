package config

import "time"

// Config is the root configuration of a tether client or server.
type Config struct {
	Client    ClientConfig    `yaml:"client"`
	Server    ServerConfig    `yaml:"server"`
	Retry     RetryConfig     `yaml:"retry"`
	KeepAlive KeepAliveConfig `yaml:"keepalive"`
	TLS       TLSConfig       `yaml:"tls"`
	Log       LogConfig       `yaml:"log"`
}

// ClientConfig describes the endpoint a client connects to. Exactly one
// of Address and URL is set.
type ClientConfig struct {
	Address        string            `yaml:"address"` // host:port of a plain socket
	URL            string            `yaml:"url"`     // ws:// or wss://
	Headers        map[string]string `yaml:"headers"` // sent with the upgrade request
	ConnectTimeout time.Duration     `yaml:"connect_timeout"`
	Framing        string            `yaml:"framing"` // line | length-prefix
	MaxFrameSize   int               `yaml:"max_frame_size"`
	OutboundBuffer int               `yaml:"outbound_buffer"`
}

// WebSocket reports whether the client dials a WebSocket URL.
func (c ClientConfig) WebSocket() bool {
	return c.URL != ""
}

// ServerConfig describes the listening endpoint.
type ServerConfig struct {
	Listen           string        `yaml:"listen"`
	WebSocket        bool          `yaml:"websocket"`
	Path             string        `yaml:"path"`
	AllowedOrigins   []string      `yaml:"allowed_origins"` // "*" accepts any origin
	Framing          string        `yaml:"framing"`
	MaxFrameSize     int           `yaml:"max_frame_size"`
	OutboundBuffer   int           `yaml:"outbound_buffer"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// RetryConfig selects the reconnect policy of a client.
type RetryConfig struct {
	Strategy string `yaml:"strategy"` // constant | backoff

	// MaxAttempts is the number of automatic reconnects per failure
	// episode. Zero selects the default, a negative value disables
	// retries.
	MaxAttempts int `yaml:"max_attempts"`

	// Delay is the constant delay, or the initial delay of the backoff.
	Delay time.Duration `yaml:"delay"`

	MaxDelay   time.Duration `yaml:"max_delay"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     float64       `yaml:"jitter"`
}

// KeepAliveConfig configures WebSocket pings.
type KeepAliveConfig struct {
	Disabled       bool          `yaml:"disabled"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
	MaxMissedPongs int           `yaml:"max_missed_pongs"`
}

// TLSConfig points at PEM files. Clients dialing wss:// use TLS even
// when Enabled is false.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	CAFile             string `yaml:"ca_file"`
	ServerName         string `yaml:"server_name"`
	RequireClientCert  bool   `yaml:"require_client_cert"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// LogConfig configures operational and protocol logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json

	// ProtocolFile receives CBOR protocol events when set.
	ProtocolFile string `yaml:"protocol_file"`

	// ProtocolConsole mirrors protocol events to the operational log at
	// debug level.
	ProtocolConsole bool `yaml:"protocol_console"`
}
