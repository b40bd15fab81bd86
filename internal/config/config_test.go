package config

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tether-io/tether-go/pkg/connection"
	"github.com/tether-io/tether-go/pkg/log"
	"github.com/tether-io/tether-go/pkg/transport"
	"github.com/tether-io/tether-go/pkg/version"
)

func TestLoad(t *testing.T) {
	yaml := `
client:
  url: wss://gateway.example.com/ws
  headers:
    X-Client: tether
  connect_timeout: 5s
server:
  listen: ":9000"
  websocket: true
  path: /events
  allowed_origins: ["https://app.example.com"]
retry:
  strategy: backoff
  max_attempts: 8
  delay: 250ms
  max_delay: 10s
keepalive:
  ping_interval: 20s
log:
  level: debug
  format: json
`
	cfg, err := Load(writeTempFile(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, "wss://gateway.example.com/ws", cfg.Client.URL)
	assert.True(t, cfg.Client.WebSocket())
	assert.Equal(t, "tether", cfg.Client.Headers["X-Client"])
	assert.Equal(t, 5*time.Second, cfg.Client.ConnectTimeout)
	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.True(t, cfg.Server.WebSocket)
	assert.Equal(t, "/events", cfg.Server.Path)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "backoff", cfg.Retry.Strategy)
	assert.Equal(t, 8, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, 20*time.Second, cfg.KeepAlive.PingInterval)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TETHER_TEST_TOKEN", "secret123")
	t.Setenv("TETHER_TEST_ADDR", "10.0.0.7:7000")

	yaml := `
client:
  address: ${TETHER_TEST_ADDR}
  headers:
    Authorization: Bearer ${TETHER_TEST_TOKEN}
`
	cfg, err := Load(writeTempFile(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.7:7000", cfg.Client.Address)
	assert.Equal(t, "Bearer secret123", cfg.Client.Headers["Authorization"])
}

func TestLoadErrors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.Contains(t, err.Error(), "read config file")
	})

	t.Run("BadYAML", func(t *testing.T) {
		_, err := Load(writeTempFile(t, "client: [unterminated"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config yaml")
	})

	t.Run("BadDuration", func(t *testing.T) {
		_, err := Parse([]byte("client:\n  connect_timeout: soon\n"))
		require.Error(t, err)
	})
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadWithDefaults(writeTempFile(t, "client:\n  address: localhost:9000\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultConnectTimeout, cfg.Client.ConnectTimeout)
	assert.Equal(t, DefaultFraming, cfg.Client.Framing)
	assert.Equal(t, DefaultMaxFrameSize, cfg.Client.MaxFrameSize)
	assert.Equal(t, DefaultOutboundBuffer, cfg.Client.OutboundBuffer)
	assert.Equal(t, DefaultServerPath, cfg.Server.Path)
	assert.Equal(t, DefaultShutdownTimeout, cfg.Server.ShutdownTimeout)
	assert.Equal(t, DefaultRetryStrategy, cfg.Retry.Strategy)
	assert.Equal(t, DefaultRetryAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, DefaultRetryDelay, cfg.Retry.Delay)
	assert.Zero(t, cfg.Retry.MaxDelay, "constant strategy has no ceiling")
	assert.Equal(t, DefaultPingInterval, cfg.KeepAlive.PingInterval)
	assert.Equal(t, DefaultMaxMissedPongs, cfg.KeepAlive.MaxMissedPongs)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)

	t.Run("BackoffDefaults", func(t *testing.T) {
		cfg, err := LoadWithDefaults(writeTempFile(t, "retry:\n  strategy: backoff\n"))
		require.NoError(t, err)
		assert.Equal(t, DefaultBackoffDelay, cfg.Retry.Delay)
		assert.Equal(t, DefaultBackoffMaxDelay, cfg.Retry.MaxDelay)
		assert.Equal(t, DefaultBackoffFactor, cfg.Retry.Multiplier)
		assert.Equal(t, DefaultBackoffJitter, cfg.Retry.Jitter)
	})

	t.Run("ExplicitValuesKept", func(t *testing.T) {
		cfg, err := LoadWithDefaults(writeTempFile(t, "retry:\n  max_attempts: -1\n  delay: 2s\n"))
		require.NoError(t, err)
		assert.Equal(t, -1, cfg.Retry.MaxAttempts)
		assert.Equal(t, 2*time.Second, cfg.Retry.Delay)
	})
}

func TestLoadAndValidate(t *testing.T) {
	_, err := LoadAndValidate(writeTempFile(t, "retry:\n  strategy: linear\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
	assert.Contains(t, err.Error(), "retry.strategy")

	cfg, err := LoadAndValidate(writeTempFile(t, "server:\n  listen: \":0\"\n"))
	require.NoError(t, err)
	assert.Equal(t, ":0", cfg.Server.Listen)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"address and url", func(c *Config) {
			c.Client.Address = "localhost:1"
			c.Client.URL = "ws://localhost:1/"
		}, "mutually exclusive"},
		{"url scheme", func(c *Config) { c.Client.URL = "http://localhost/" }, "client.url"},
		{"url host", func(c *Config) { c.Client.URL = "ws:///path" }, "host is required"},
		{"client framing", func(c *Config) { c.Client.Framing = "chunked" }, "client.framing"},
		{"server framing", func(c *Config) { c.Server.Framing = "xml" }, "server.framing"},
		{"max frame size", func(c *Config) { c.Client.MaxFrameSize = -1 }, "client.max_frame_size"},
		{"outbound buffer", func(c *Config) { c.Server.OutboundBuffer = -1 }, "server.outbound_buffer"},
		{"server path", func(c *Config) {
			c.Server.WebSocket = true
			c.Server.Path = "events"
		}, "server.path"},
		{"retry strategy", func(c *Config) { c.Retry.Strategy = "linear" }, "retry.strategy"},
		{"retry delay", func(c *Config) { c.Retry.Delay = -time.Second }, "retry delays"},
		{"backoff multiplier", func(c *Config) {
			c.Retry.Strategy = "backoff"
			c.Retry.Multiplier = 0.5
		}, "retry.multiplier"},
		{"backoff ceiling", func(c *Config) {
			c.Retry.Strategy = "backoff"
			c.Retry.Delay = time.Minute
			c.Retry.MaxDelay = time.Second
		}, "retry.max_delay"},
		{"backoff jitter", func(c *Config) {
			c.Retry.Strategy = "backoff"
			c.Retry.Jitter = 2
		}, "retry.jitter"},
		{"keepalive pongs", func(c *Config) { c.KeepAlive.MaxMissedPongs = -1 }, "keepalive.max_missed_pongs"},
		{"disabled keepalive skips checks", func(c *Config) {
			c.KeepAlive.Disabled = true
			c.KeepAlive.PingInterval = -1
		}, ""},
		{"cert without key", func(c *Config) { c.TLS.CertFile = "cert.pem" }, "tls.cert_file and tls.key_file"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateModes(t *testing.T) {
	t.Run("ClientRequiresEndpoint", func(t *testing.T) {
		cfg := Default()
		assert.ErrorContains(t, cfg.ValidateClient(), "client.address or client.url")
		cfg.Client.URL = "ws://localhost:9000/"
		assert.NoError(t, cfg.ValidateClient())
	})

	t.Run("ServerRequiresListen", func(t *testing.T) {
		cfg := Default()
		assert.ErrorContains(t, cfg.ValidateServer(), "server.listen")
		cfg.Server.Listen = ":9000"
		assert.NoError(t, cfg.ValidateServer())
	})

	t.Run("ServerTLSRequiresCertificate", func(t *testing.T) {
		cfg := Default()
		cfg.Server.Listen = ":9000"
		cfg.TLS.Enabled = true
		assert.ErrorContains(t, cfg.ValidateServer(), "tls.cert_file")

		cfg.TLS.CertFile, cfg.TLS.KeyFile = "cert.pem", "key.pem"
		cfg.TLS.RequireClientCert = true
		assert.ErrorContains(t, cfg.ValidateServer(), "tls.ca_file")
	})

	t.Run("ModeChecksIncludeValidate", func(t *testing.T) {
		cfg := Default()
		cfg.Client.Address = "localhost:9000"
		cfg.Log.Format = "xml"
		assert.ErrorContains(t, cfg.ValidateClient(), "log.format")
	})
}

func TestRetryStrategy(t *testing.T) {
	t.Run("Constant", func(t *testing.T) {
		cfg := Default()
		cfg.Retry.MaxAttempts = 3
		cfg.Retry.Delay = 100 * time.Millisecond

		r := cfg.RetryStrategy()
		require.IsType(t, connection.ConstantRetry{}, r)
		assert.Equal(t, 3, r.MaxAttempts())
		assert.Equal(t, 100*time.Millisecond, r.DelayForAttempt(1))
		assert.Equal(t, 100*time.Millisecond, r.DelayForAttempt(3))
	})

	t.Run("Backoff", func(t *testing.T) {
		cfg := Default()
		cfg.Retry = RetryConfig{Strategy: "backoff", MaxAttempts: 6, Delay: 100 * time.Millisecond, MaxDelay: time.Second}

		r := cfg.RetryStrategy()
		b, ok := r.(*connection.BackoffRetry)
		require.True(t, ok, "got %T", r)
		assert.Equal(t, 6, b.MaxAttempts())
		assert.Equal(t, 100*time.Millisecond, b.Base(1))
		assert.Equal(t, 400*time.Millisecond, b.Base(3))
		assert.Equal(t, time.Second, b.Base(10))
	})

	t.Run("NegativeAttemptsDisableRetries", func(t *testing.T) {
		for _, strategy := range []string{"constant", "backoff"} {
			cfg := Default()
			cfg.Retry.Strategy = strategy
			cfg.Retry.MaxAttempts = -1
			assert.Zero(t, cfg.RetryStrategy().MaxAttempts(), strategy)
		}
	})

	t.Run("UndefaultedSection", func(t *testing.T) {
		cfg := &Config{}
		r := cfg.RetryStrategy()
		assert.Equal(t, DefaultRetryAttempts, r.MaxAttempts())
		assert.Equal(t, DefaultRetryDelay, r.DelayForAttempt(1))
	})
}

func TestDialerConfig(t *testing.T) {
	t.Run("Socket", func(t *testing.T) {
		cfg := Default()
		cfg.Client.Address = "localhost:9000"
		cfg.Client.Framing = "length-prefix"

		dc, err := cfg.DialerConfig(nil, nil)
		require.NoError(t, err)
		assert.False(t, dc.WebSocket)
		assert.Equal(t, "localhost:9000", dc.Address)
		assert.Equal(t, transport.FramingLengthPrefix, dc.Framing)
		assert.Nil(t, dc.TLS)
		assert.Nil(t, dc.Header)
		assert.Equal(t, DefaultPingInterval, dc.KeepAlive.PingInterval)
	})

	t.Run("SecureWebSocket", func(t *testing.T) {
		cfg := Default()
		cfg.Client.URL = "wss://gateway.example.com/ws"
		cfg.Client.Headers = map[string]string{"authorization": "Bearer x"}
		cfg.KeepAlive.Disabled = true

		dc, err := cfg.DialerConfig(nil, nil)
		require.NoError(t, err)
		assert.True(t, dc.WebSocket)
		assert.Equal(t, "Bearer x", dc.Header.Get("Authorization"))
		assert.Equal(t, version.UserAgent(), dc.Header.Get("User-Agent"))
		require.NotNil(t, dc.TLS, "wss:// implies TLS")
		assert.Equal(t, uint16(tls.VersionTLS12), dc.TLS.MinVersion)
		assert.False(t, dc.KeepAlive.Enabled())
	})

	t.Run("BadFraming", func(t *testing.T) {
		cfg := Default()
		cfg.Client.Address = "localhost:9000"
		cfg.Client.Framing = "chunked"
		_, err := cfg.DialerConfig(nil, nil)
		assert.ErrorContains(t, err, "client.framing")
	})

	t.Run("MissingCAFile", func(t *testing.T) {
		cfg := Default()
		cfg.Client.Address = "localhost:9000"
		cfg.TLS.Enabled = true
		cfg.TLS.CAFile = filepath.Join(t.TempDir(), "absent.pem")
		_, err := cfg.DialerConfig(nil, nil)
		assert.ErrorContains(t, err, "tls")
	})

	t.Run("NewDialer", func(t *testing.T) {
		cfg := Default()
		cfg.Client.URL = "ws://localhost:9000/"
		d, err := cfg.NewDialer(nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "ws://localhost:9000/", d.Endpoint())
		assert.NoError(t, d.Release())
	})
}

func TestTransportServerConfig(t *testing.T) {
	t.Run("Origins", func(t *testing.T) {
		req := func(origin string) *http.Request {
			r, _ := http.NewRequest(http.MethodGet, "http://localhost/", nil)
			if origin != "" {
				r.Header.Set("Origin", origin)
			}
			return r
		}

		cfg := Default()
		cfg.Server.Listen = ":0"
		sc, err := cfg.TransportServerConfig(nil, nil)
		require.NoError(t, err)
		assert.Nil(t, sc.CheckOrigin)

		cfg.Server.AllowedOrigins = []string{"https://app.example.com"}
		sc, err = cfg.TransportServerConfig(nil, nil)
		require.NoError(t, err)
		require.NotNil(t, sc.CheckOrigin)
		assert.True(t, sc.CheckOrigin(req("https://app.example.com")))
		assert.True(t, sc.CheckOrigin(req("")))
		assert.False(t, sc.CheckOrigin(req("https://evil.example.com")))

		cfg.Server.AllowedOrigins = []string{"*"}
		sc, err = cfg.TransportServerConfig(nil, nil)
		require.NoError(t, err)
		assert.True(t, sc.CheckOrigin(req("https://evil.example.com")))
	})

	t.Run("TLS", func(t *testing.T) {
		certFile, keyFile := writeCertificate(t)

		cfg := Default()
		cfg.Server.Listen = "127.0.0.1:0"
		cfg.TLS = TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: certFile, RequireClientCert: true}

		sc, err := cfg.TransportServerConfig(nil, nil)
		require.NoError(t, err)
		require.NotNil(t, sc.TLS)
		assert.Len(t, sc.TLS.Certificates, 1)
		assert.Equal(t, tls.RequireAndVerifyClientCert, sc.TLS.ClientAuth)

		srv, err := cfg.NewServer(nil, nil)
		require.NoError(t, err)
		assert.Nil(t, srv.Addr())
	})

	t.Run("TLSWithoutCertificate", func(t *testing.T) {
		cfg := Default()
		cfg.Server.Listen = ":0"
		cfg.TLS.Enabled = true
		_, err := cfg.TransportServerConfig(nil, nil)
		assert.ErrorContains(t, err, "certificate is required")
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := LogConfig{Level: "warn", Format: "json"}
	logger, err := l.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "peer", "p1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"peer":"p1"`)

	_, err = (&LogConfig{Level: "loud"}).NewLogger(io.Discard)
	assert.Error(t, err)
}

func TestNewProtocolLogger(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		pl, closeFn, err := (&LogConfig{}).NewProtocolLogger(nil)
		require.NoError(t, err)
		assert.IsType(t, log.NoopLogger{}, pl)
		assert.NoError(t, closeFn())
	})

	t.Run("FileAndConsole", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "trace", "events.cbor")
		var buf bytes.Buffer
		console, err := (&LogConfig{Level: "debug"}).NewLogger(&buf)
		require.NoError(t, err)

		pl, closeFn, err := (&LogConfig{ProtocolFile: path, ProtocolConsole: true}).NewProtocolLogger(console)
		require.NoError(t, err)
		multi, ok := pl.(*log.MultiLogger)
		require.True(t, ok, "got %T", pl)
		assert.Equal(t, 2, multi.Len())

		pl.Log(log.Event{
			Timestamp: time.Now(),
			Layer:     log.LayerManager,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityClient,
				OldState: "CONNECTING",
				NewState: "CONNECTED",
			},
		})
		require.NoError(t, closeFn())
		assert.Contains(t, buf.String(), "protocol")

		r, err := log.NewReader(path)
		require.NoError(t, err)
		defer r.Close()
		ev, err := r.Next()
		require.NoError(t, err)
		require.NotNil(t, ev.StateChange)
		assert.Equal(t, "CONNECTED", ev.StateChange.NewState)
		_, err = r.Next()
		assert.ErrorIs(t, err, io.EOF)
	})
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeCertificate writes a self-signed certificate and its key as PEM
// files and returns their paths.
func writeCertificate(t *testing.T) (certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}
