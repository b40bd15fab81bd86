package config

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/tether-io/tether-go/pkg/connection"
	"github.com/tether-io/tether-go/pkg/log"
	"github.com/tether-io/tether-go/pkg/transport"
	"github.com/tether-io/tether-go/pkg/version"
)

// DialerConfig converts the client, keepalive and tls sections into a
// transport.DialerConfig.
func (c *Config) DialerConfig(logger *slog.Logger, protoLog log.Logger) (transport.DialerConfig, error) {
	framing, err := transport.ParseFraming(c.Client.Framing)
	if err != nil {
		return transport.DialerConfig{}, fmt.Errorf("client.framing: %w", err)
	}

	dc := transport.DialerConfig{
		Address:        c.Client.Address,
		URL:            c.Client.URL,
		WebSocket:      c.Client.WebSocket(),
		ConnectTimeout: c.Client.ConnectTimeout,
		Framing:        framing,
		MaxFrameSize:   c.Client.MaxFrameSize,
		OutboundBuffer: c.Client.OutboundBuffer,
		KeepAlive:      c.keepAlive(),
		Logger:         logger,
		ProtocolLogger: protoLog,
	}
	if dc.WebSocket {
		dc.Header = make(http.Header, len(c.Client.Headers)+1)
		dc.Header.Set("User-Agent", version.UserAgent())
		for k, v := range c.Client.Headers {
			dc.Header.Set(k, v)
		}
	}
	if c.TLS.Enabled || strings.HasPrefix(c.Client.URL, "wss://") {
		if dc.TLS, err = c.TLS.client(); err != nil {
			return transport.DialerConfig{}, err
		}
	}
	return dc, nil
}

// NewDialer builds the dialer described by the client section.
func (c *Config) NewDialer(logger *slog.Logger, protoLog log.Logger) (transport.Dialer, error) {
	dc, err := c.DialerConfig(logger, protoLog)
	if err != nil {
		return nil, err
	}
	return transport.NewDialer(dc)
}

// TransportServerConfig converts the server, keepalive and tls sections
// into a transport.ServerConfig.
func (c *Config) TransportServerConfig(logger *slog.Logger, protoLog log.Logger) (transport.ServerConfig, error) {
	framing, err := transport.ParseFraming(c.Server.Framing)
	if err != nil {
		return transport.ServerConfig{}, fmt.Errorf("server.framing: %w", err)
	}

	sc := transport.ServerConfig{
		Address:          c.Server.Listen,
		WebSocket:        c.Server.WebSocket,
		Path:             c.Server.Path,
		CheckOrigin:      originChecker(c.Server.AllowedOrigins),
		HandshakeTimeout: c.Server.HandshakeTimeout,
		Framing:          framing,
		MaxFrameSize:     c.Server.MaxFrameSize,
		OutboundBuffer:   c.Server.OutboundBuffer,
		KeepAlive:        c.keepAlive(),
		Logger:           logger,
		ProtocolLogger:   protoLog,
	}
	if c.TLS.Enabled {
		if sc.TLS, err = c.TLS.server(); err != nil {
			return transport.ServerConfig{}, err
		}
	}
	return sc, nil
}

// NewServer builds the listening endpoint described by the server section.
func (c *Config) NewServer(logger *slog.Logger, protoLog log.Logger) (transport.Server, error) {
	sc, err := c.TransportServerConfig(logger, protoLog)
	if err != nil {
		return nil, err
	}
	return transport.NewServer(sc)
}

// RetryStrategy returns the reconnect policy of the retry section.
func (c *Config) RetryStrategy() connection.RetryStrategy {
	r := c.Retry
	applyRetryDefaults(&r)

	if r.Strategy == "backoff" {
		return connection.NewBackoffRetry(connection.BackoffConfig{
			Attempts:   r.MaxAttempts,
			Initial:    r.Delay,
			Max:        r.MaxDelay,
			Multiplier: r.Multiplier,
			Jitter:     r.Jitter,
		})
	}
	return connection.ConstantRetry{Attempts: max(r.MaxAttempts, 0), Delay: r.Delay}
}

func (c *Config) keepAlive() transport.KeepAliveConfig {
	if c.KeepAlive.Disabled {
		return transport.KeepAliveConfig{}
	}
	return transport.KeepAliveConfig{
		PingInterval:   c.KeepAlive.PingInterval,
		PongTimeout:    c.KeepAlive.PongTimeout,
		MaxMissedPongs: c.KeepAlive.MaxMissedPongs,
	}
}

// originChecker accepts the listed origins. An empty list keeps the
// same-origin default and "*" accepts everything.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

func (t *TLSConfig) material() (*transport.TLSConfig, error) {
	tc := &transport.TLSConfig{
		ServerName:         t.ServerName,
		RequireClientCert:  t.RequireClientCert,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}
	if t.CertFile != "" {
		cert, err := transport.LoadCertificate(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("tls: %w", err)
		}
		tc.Certificate = cert
	}
	if t.CAFile != "" {
		pool, err := transport.LoadCertPool(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("tls: %w", err)
		}
		tc.RootCAs = pool
		tc.ClientCAs = pool
	}
	return tc, nil
}

func (t *TLSConfig) client() (*tls.Config, error) {
	tc, err := t.material()
	if err != nil {
		return nil, err
	}
	return transport.NewClientTLSConfig(tc)
}

func (t *TLSConfig) server() (*tls.Config, error) {
	tc, err := t.material()
	if err != nil {
		return nil, err
	}
	return transport.NewServerTLSConfig(tc)
}

// NewLogger builds the operational logger writing to w.
func (l *LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if l.Level != "" {
		if err := level.UnmarshalText([]byte(l.Level)); err != nil {
			return nil, fmt.Errorf("log.level: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// NewProtocolLogger builds the protocol event logger. The returned close
// function flushes the trace file and must be called on shutdown. With
// neither a file nor console output configured it returns a NoopLogger.
func (l *LogConfig) NewProtocolLogger(logger *slog.Logger) (log.Logger, func() error, error) {
	var loggers []log.Logger
	closeFn := func() error { return nil }

	if l.ProtocolFile != "" {
		fl, err := log.NewFileLogger(l.ProtocolFile)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fl)
		closeFn = fl.Close
	}
	if l.ProtocolConsole {
		loggers = append(loggers, log.NewSlogAdapter(logger))
	}

	switch len(loggers) {
	case 0:
		return log.NoopLogger{}, closeFn, nil
	case 1:
		return loggers[0], closeFn, nil
	default:
		return log.NewMultiLogger(loggers...), closeFn, nil
	}
}
