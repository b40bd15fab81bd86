package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tether-io/tether-go/pkg/log"
)

// recordingHandler captures connection events on buffered channels.
type recordingHandler struct {
	active   chan Conn
	frames   chan Frame
	inactive chan error
	onFrame  func(c Conn, f Frame)
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		active:   make(chan Conn, 16),
		frames:   make(chan Frame, 64),
		inactive: make(chan error, 16),
	}
}

func (h *recordingHandler) OnActive(c Conn) { h.active <- c }

func (h *recordingHandler) OnFrame(c Conn, f Frame) {
	if h.onFrame != nil {
		h.onFrame(c, f)
	}
	h.frames <- f
}

func (h *recordingHandler) OnInactive(_ Conn, err error) { h.inactive <- err }

func (h *recordingHandler) waitActive(t *testing.T) Conn {
	t.Helper()
	select {
	case c := <-h.active:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnActive")
		return nil
	}
}

func (h *recordingHandler) waitFrame(t *testing.T) Frame {
	t.Helper()
	select {
	case f := <-h.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return Frame{}
	}
}

func (h *recordingHandler) waitInactive(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.inactive:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for OnInactive")
		return nil
	}
}

// echo returns a handler that writes every inbound frame back.
func echo() *recordingHandler {
	h := newRecordingHandler()
	h.onFrame = func(c Conn, f Frame) {
		_ = c.Write(Frame{Type: f.Type, Data: f.Data})
	}
	return h
}

// captureLogger records protocol events.
type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *captureLogger) Log(e log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *captureLogger) controls(kind log.ControlMsgType, dir log.Direction) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.ControlMsg != nil && e.ControlMsg.Type == kind && e.Direction == dir {
			n++
		}
	}
	return n
}

func (l *captureLogger) frames(dir log.Direction) []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []log.Event
	for _, e := range l.events {
		if e.Frame != nil && e.Direction == dir {
			out = append(out, e)
		}
	}
	return out
}

// generateTestCert creates a self-signed certificate valid for 127.0.0.1
// and localhost.
func generateTestCert(t *testing.T) (*tls.Certificate, *x509.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: "tether-test"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return &tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, leaf
}

// writePEMFiles stores cert and key as PEM files and returns their paths.
func writePEMFiles(t *testing.T, cert *tls.Certificate) (certFile, keyFile string) {
	t.Helper()
	dir := t.TempDir()

	keyDER, err := x509.MarshalECPrivateKey(cert.PrivateKey.(*ecdsa.PrivateKey))
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

// freeAddr returns a loopback address with nothing listening on it.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}
