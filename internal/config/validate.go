package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/tether-io/tether-go/pkg/transport"
)

// Validate checks that every configured value is well formed. Whether an
// endpoint is required depends on the mode; see ValidateClient and
// ValidateServer.
func (c *Config) Validate() error {
	if c.Client.Address != "" && c.Client.URL != "" {
		return errors.New("client.address and client.url are mutually exclusive")
	}
	if c.Client.URL != "" {
		if err := validateWebSocketURL(c.Client.URL); err != nil {
			return fmt.Errorf("client.url: %w", err)
		}
	}
	if err := validateFraming("client", c.Client.Framing, c.Client.MaxFrameSize, c.Client.OutboundBuffer); err != nil {
		return err
	}
	if c.Client.ConnectTimeout < 0 {
		return errors.New("client.connect_timeout must be >= 0")
	}

	if c.Server.WebSocket && (c.Server.Path == "" || c.Server.Path[0] != '/') {
		return fmt.Errorf("server.path must start with '/', got %q", c.Server.Path)
	}
	if err := validateFraming("server", c.Server.Framing, c.Server.MaxFrameSize, c.Server.OutboundBuffer); err != nil {
		return err
	}
	if c.Server.ShutdownTimeout < 0 {
		return errors.New("server.shutdown_timeout must be >= 0")
	}

	if err := c.Retry.validate("retry"); err != nil {
		return err
	}

	if !c.KeepAlive.Disabled {
		if c.KeepAlive.PingInterval < 0 || c.KeepAlive.PongTimeout < 0 {
			return errors.New("keepalive durations must be >= 0")
		}
		if c.KeepAlive.MaxMissedPongs < 0 {
			return errors.New("keepalive.max_missed_pongs must be >= 0")
		}
	}

	if err := c.TLS.validate("tls"); err != nil {
		return err
	}

	return c.Log.validate("log")
}

// ValidateClient runs Validate and requires a client endpoint.
func (c *Config) ValidateClient() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Client.Address == "" && c.Client.URL == "" {
		return errors.New("client.address or client.url is required")
	}
	return nil
}

// ValidateServer runs Validate and requires a listen address and, with
// TLS enabled, a certificate.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Server.Listen == "" {
		return errors.New("server.listen is required")
	}
	if c.TLS.Enabled && c.TLS.CertFile == "" {
		return errors.New("tls.cert_file is required for servers")
	}
	if c.TLS.RequireClientCert && c.TLS.CAFile == "" {
		return errors.New("tls.ca_file is required with tls.require_client_cert")
	}
	return nil
}

func validateWebSocketURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

func validateFraming(prefix, framing string, maxFrame, outbound int) error {
	if _, err := transport.ParseFraming(framing); err != nil {
		return fmt.Errorf("%s.framing: %w", prefix, err)
	}
	if maxFrame < 0 {
		return fmt.Errorf("%s.max_frame_size must be >= 0", prefix)
	}
	if outbound < 0 {
		return fmt.Errorf("%s.outbound_buffer must be >= 0", prefix)
	}
	return nil
}

func (r *RetryConfig) validate(prefix string) error {
	switch r.Strategy {
	case "", "constant", "backoff":
	default:
		return fmt.Errorf("%s.strategy must be constant or backoff, got %q", prefix, r.Strategy)
	}
	if r.Delay < 0 || r.MaxDelay < 0 {
		return fmt.Errorf("%s delays must be >= 0", prefix)
	}
	if r.Strategy == "backoff" {
		if r.Multiplier != 0 && r.Multiplier < 1 {
			return fmt.Errorf("%s.multiplier must be >= 1, got %g", prefix, r.Multiplier)
		}
		if r.Jitter > 1 {
			return fmt.Errorf("%s.jitter must be <= 1, got %g", prefix, r.Jitter)
		}
		if r.MaxDelay != 0 && r.MaxDelay < r.Delay {
			return fmt.Errorf("%s.max_delay must be >= %s.delay", prefix, prefix)
		}
	}
	return nil
}

func (t *TLSConfig) validate(prefix string) error {
	if (t.CertFile == "") != (t.KeyFile == "") {
		return fmt.Errorf("%s.cert_file and %s.key_file must be set together", prefix, prefix)
	}
	return nil
}

func (l *LogConfig) validate(prefix string) error {
	if l.Level != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
			return fmt.Errorf("%s.level: %w", prefix, err)
		}
	}
	switch l.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%s.format must be text or json, got %q", prefix, l.Format)
	}
	return nil
}
