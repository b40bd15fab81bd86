package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// TLSConfig holds the certificate material for secure transport.
type TLSConfig struct {
	// Certificate is this endpoint's certificate. Required for servers,
	// optional for clients (mutual TLS).
	Certificate *tls.Certificate

	// RootCAs verifies server certificates. Nil uses the system pool.
	RootCAs *x509.CertPool

	// ClientCAs verifies client certificates on servers.
	ClientCAs *x509.CertPool

	// ServerName overrides the name verified against the server certificate.
	ServerName string

	// RequireClientCert enables mutual TLS on servers.
	RequireClientCert bool

	// InsecureSkipVerify disables server certificate verification. Tests only.
	InsecureSkipVerify bool
}

// NewServerTLSConfig builds a server tls.Config.
func NewServerTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, errors.New("tls: config is required")
	}
	if cfg.Certificate == nil || len(cfg.Certificate.Certificate) == 0 {
		return nil, errors.New("tls: server certificate is required")
	}

	tc := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{*cfg.Certificate},
		ClientCAs:    cfg.ClientCAs,
		ClientAuth:   tls.NoClientCert,
	}
	if cfg.RequireClientCert {
		if cfg.ClientCAs == nil {
			return nil, errors.New("tls: client CA pool is required for mutual TLS")
		}
		tc.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tc, nil
}

// NewClientTLSConfig builds a client tls.Config.
func NewClientTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, errors.New("tls: config is required")
	}
	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		RootCAs:            cfg.RootCAs,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.Certificate != nil {
		tc.Certificates = []tls.Certificate{*cfg.Certificate}
	}
	return tc, nil
}

// LoadCertificate reads a PEM certificate and key pair.
func LoadCertificate(certFile, keyFile string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &cert, nil
}

// LoadCertPool reads a PEM bundle of CA certificates.
func LoadCertPool(caFile string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	return pool, nil
}
