package evserve

import (
	"crypto/tls"
	"net"
	"time"
)

// TLSNegotiator is C5: wraps plaintext listeners so Accept returns TLS
// server connections exposing the ALPN result, which listener.go's
// acceptLoop reads via tlsConnNegotiated to pick a Driver
// (HTTP/2 on "h2", HTTP/1.1 otherwise). Certificate management itself is
// out of scope (§1 Non-goals carried into SPEC_FULL B.4) — callers
// supply a ready *tls.Config.
//
// Grounded on badu-http's tls_handshake_timeout_error.go idiom (a named
// error for a slow handshake) generalized into a full negotiator type,
// since the teacher had no ALPN/driver-selection logic to adapt.
type TLSNegotiator struct {
	config           *tls.Config
	handshakeTimeout time.Duration
}

// NewTLSNegotiator builds a negotiator; config.NextProtos should list
// "h2" before "http/1.1" to prefer HTTP/2 when both peers support it.
func NewTLSNegotiator(config *tls.Config) *TLSNegotiator {
	return &TLSNegotiator{config: config}
}

// Wrap implements C4's "TLS wraps a bound listener" step (§4.2).
func (n *TLSNegotiator) Wrap(inner net.Listener) net.Listener {
	return &tlsListener{inner: inner, config: n.config}
}

type tlsListener struct {
	inner  net.Listener
	config *tls.Config
}

func (l *tlsListener) Accept() (net.Conn, error) {
	c, err := l.inner.Accept()
	if err != nil {
		return nil, err
	}
	return &negotiatedConn{Conn: tls.Server(c, l.config)}, nil
}

func (l *tlsListener) Close() error   { return l.inner.Close() }
func (l *tlsListener) Addr() net.Addr { return l.inner.Addr() }

// negotiatedConn leaves the handshake out of Accept and exposes
// NegotiatedProtocol, which runs the handshake (on the accept loop's
// goroutine, when acceptLoop calls it) and reports the ALPN result,
// falling back to HTTP/1.1 if the handshake fails.
type negotiatedConn struct {
	*tls.Conn
}

func (c *negotiatedConn) NegotiatedProtocol() string {
	if err := c.Conn.Handshake(); err != nil {
		return HTTP1_1
	}
	if p := c.Conn.ConnectionState().NegotiatedProtocol; p != "" {
		return p
	}
	return HTTP1_1
}
