// Package driverws implements C12's Export Protocol for WebSocket: it
// takes an exported raw connection (already past the core's HTTP
// dispatch) and completes the RFC 6455 handshake on it, grounded on
// gorilla/websocket the way the retrieval pack's websockets example
// wires the same library into a plain net.Conn.
package driverws

import (
	"bufio"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/badu/evserve"
)

// Handler receives the upgraded *websocket.Conn once the handshake
// completes; it owns the connection for the rest of its life.
type Handler func(conn *websocket.Conn, req *evserve.Request)

// Upgrader adapts a Handler to evserve.Upgrader. The handshake itself
// is delegated to websocket.Upgrader.Upgrade, which needs an
// http.ResponseWriter/*http.Request pair; Upgrade synthesizes the
// minimal shim those need from evserve's dispatch-view Request, since
// this core never constructs net/http types on the request path itself.
type Upgrader struct {
	ws      *websocket.Upgrader
	handler Handler
}

// New builds a driverws.Upgrader. checkOrigin, if nil, accepts every
// origin (callers in a production deployment should supply one).
func New(handler Handler, checkOrigin func(r *http.Request) bool) *Upgrader {
	return &Upgrader{
		ws: &websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		handler: handler,
	}
}

// Upgrade implements evserve.Upgrader.
func (u *Upgrader) Upgrade(raw net.Conn, req *evserve.Request) error {
	httpReq := &http.Request{
		Method: req.Method,
		Host:   req.Host,
		Header: make(http.Header),
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = vs
	}

	brw := bufio.NewReadWriter(bufio.NewReader(raw), bufio.NewWriter(raw))
	conn, err := u.ws.Upgrade(&responseShim{raw: raw, brw: brw, hdr: make(http.Header)}, httpReq, nil)
	if err != nil {
		return err
	}
	go u.handler(conn, req)
	return nil
}

// responseShim is the minimal http.ResponseWriter + http.Hijacker pair
// websocket.Upgrader.Upgrade needs to write the 101 response and take
// over the raw connection; evserve has already exported raw, so
// Hijack just returns it directly rather than performing a second
// handoff. On the success path Upgrade never calls Write/WriteHeader
// itself (it writes the 101 response straight to the hijacked
// connection), but on a failed handshake it calls http.Error against
// this shim, so Write must still render a well-formed status line the
// first time it's called.
type responseShim struct {
	raw net.Conn
	brw *bufio.ReadWriter
	hdr http.Header

	status      int
	wroteHeader bool
}

func (r *responseShim) Header() http.Header {
	if r.hdr == nil {
		r.hdr = make(http.Header)
	}
	return r.hdr
}

func (r *responseShim) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	fmt.Fprintf(r.raw, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	_ = r.Header().Write(r.raw)
	_, _ = r.raw.Write([]byte("\r\n"))
}

func (r *responseShim) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.raw.Write(p)
}

func (r *responseShim) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return r.raw, r.brw, nil
}
