package evserve

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedTLSConfig(t *testing.T, protos []string) *tls.Config {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
	return &tls.Config{Certificates: []tls.Certificate{cert}, NextProtos: protos}
}

func TestTLSNegotiatorReportsALPNProtocol(t *testing.T) {
	serverCfg := selfSignedTLSConfig(t, []string{"h2", "http/1.1"})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	negotiator := NewTLSNegotiator(serverCfg)
	wrapped := negotiator.Wrap(ln)

	protoCh := make(chan string, 1)
	go func() {
		conn, err := wrapped.Accept()
		if err != nil {
			protoCh <- ""
			return
		}
		nc := conn.(tlsConnNegotiated)
		protoCh <- nc.NegotiatedProtocol()
	}()

	clientCfg := &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"h2"}}
	conn, err := tls.Dial("tcp", ln.Addr().String(), clientCfg)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case proto := <-protoCh:
		assert.Equal(t, "h2", proto)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for negotiated protocol")
	}
}

func TestTLSNegotiatorDefaultsToHTTP1WithoutALPN(t *testing.T) {
	serverCfg := selfSignedTLSConfig(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	negotiator := NewTLSNegotiator(serverCfg)
	wrapped := negotiator.Wrap(ln)

	protoCh := make(chan string, 1)
	go func() {
		conn, err := wrapped.Accept()
		if err != nil {
			protoCh <- ""
			return
		}
		protoCh <- conn.(tlsConnNegotiated).NegotiatedProtocol()
	}()

	clientCfg := &tls.Config{InsecureSkipVerify: true}
	conn, err := tls.Dial("tcp", ln.Addr().String(), clientCfg)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case proto := <-protoCh:
		assert.Equal(t, HTTP1_1, proto)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for negotiated protocol")
	}
}
