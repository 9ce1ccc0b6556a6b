package evserve

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/badu/evserve/evlog"
	"github.com/google/uuid"
)

// connState is C6's half-close/export state machine.
type connState int32

const (
	connActive connState = iota
	connReadClosed
	connWriteClosed
	connClosed
	connExported
)

// clientConn is C6: one accepted connection, owned exclusively by its
// own goroutine (serve). Only the fields the server-wide registry/queue
// touch from other goroutines (admission block, keep-alive list element,
// state) are accessed atomically or under srv's locks; everything else
// is connection-goroutine-private, the idiomatic Go rendering of the
// spec's single-threaded-per-connection event loop (see DESIGN.md).
//
// Grounded on badu-http/conn.go's per-connection goroutine and its
// rwc/remoteAddr/server back-pointer shape.
type clientConn struct {
	srv    *Server
	rwc    net.Conn
	driver Driver

	block string // admission IP-block key, for Release on close

	state atomic.Int32 // connState

	// keepAliveElem is this connection's node in the server's
	// keep-alive queue (C11); nil once removed.
	mu            sync.Mutex
	keepAliveElem interface{}

	reqSeq int64 // requests served so far on this connection

	// bodies maps an in-flight request's seq to its streamed Body until
	// its response finishes. EntityPart/EntityComplete/SizeWarning events
	// always go to the body of the latest request (seq == reqSeq).
	bodiesMu sync.Mutex
	bodies   map[int64]*Body

	// outstanding counts the bytes of response-sink writes still in
	// progress, for the soft/hard stream cap backpressure check (§4.6).
	outstanding atomic.Int64

	suspendMu   sync.Mutex
	suspendCond *sync.Cond
	suspended   bool

	exported atomic.Bool

	// inFlight counts requests dispatched but not yet finished producing
	// a response (§3 Data Model's "in-flight response productions"), and
	// reqWG lets a half-closing read side wait for them to drain instead
	// of severing a response mid-stream (§4.4/§4.7). writeMu serializes
	// the dispatch goroutines of separate requests on this connection so
	// their sinks never write to rwc concurrently. For a client that
	// waits for each response before sending its next request (and under
	// the HTTP/2 driver, which runs one stream at a time) at most one is
	// active; when several are, writeMu keeps their bytes apart but does
	// not fix the order in which they run.
	inFlight atomic.Int64
	reqWG    sync.WaitGroup
	writeMu  sync.Mutex

	id  string
	log evlog.Logger
}

func newClientConn(srv *Server, rwc net.Conn, driver Driver, block string) *clientConn {
	id := uuid.New().String()
	c := &clientConn{
		srv:    srv,
		rwc:    rwc,
		driver: driver,
		block:  block,
		bodies: make(map[int64]*Body),
		id:     id,
		log:    srv.log.WithField("conn", id).WithField("remote", rwc.RemoteAddr().String()),
	}
	c.suspendCond = sync.NewCond(&c.suspendMu)
	return c
}

// serve is the connection's dedicated goroutine: read bytes, feed the
// driver, react to events, repeat until half-closed, exported, or the
// server stops. It owns every piece of connection-local state, so
// nothing here needs a lock except where it touches srv-wide state.
func (c *clientConn) serve() {
	defer c.finalize()

	c.srv.registerConn(c)
	buf := make([]byte, c.srv.opts.IOGranularity)

	for {
		if c.state.Load() == int32(connClosed) || c.state.Load() == int32(connExported) {
			return
		}
		if d := c.srv.opts.ConnectionTimeout; d > 0 {
			_ = c.rwc.SetReadDeadline(time.Now().Add(d))
		}
		n, err := c.rwc.Read(buf)
		if n > 0 {
			c.srv.touchKeepAlive(c)
			events, ferr := c.driver.Feed(buf[:n])
			for _, ev := range events {
				c.handleEvent(ev)
				if c.state.Load() == int32(connExported) {
					return
				}
			}
			if ferr != nil {
				c.abort(ferr)
				return
			}
		}
		if err != nil {
			c.handleReadError(err)
			return
		}
	}
}

// handleReadError reacts to rwc.Read returning an error (§4.4's
// Readable path). A genuine socket failure closes the connection right
// away — no response still being written will reach the peer regardless.
// io.EOF is different: it is also what a client produces by half-closing
// its write side after sending a request and waiting for the response (a
// normal pattern), so it must not abort a response already being
// streamed for an earlier request. Any body still being read gets a
// client-disconnect error immediately, since no further ENTITY_PART/
// ENTITY_COMPLETE events can ever arrive once the read side is gone; any
// in-flight response production is allowed to finish and flush before
// the connection is actually closed.
func (c *clientConn) handleReadError(err error) {
	c.state.Store(int32(connReadClosed))
	c.failPendingBodies(ErrClientDisconnect)

	if err != io.EOF {
		c.closeNow()
		return
	}
	if c.inFlight.Load() == 0 {
		c.closeNow()
		return
	}
	c.reqWG.Wait()
	c.closeNow()
}

// failPendingBodies fails every request body still awaiting ENTITY_PART/
// ENTITY_COMPLETE on this connection, unblocking any handler goroutine
// parked in Body.Read.
func (c *clientConn) failPendingBodies(err error) {
	c.bodiesMu.Lock()
	bodies := make([]*Body, 0, len(c.bodies))
	for _, b := range c.bodies {
		bodies = append(bodies, b)
	}
	c.bodiesMu.Unlock()
	for _, b := range bodies {
		b.Fail(err)
	}
}

// busy reports whether this connection has a response still being
// produced, the busy/idle distinction the keep-alive sweep's §4.7
// exception names: a connection with requests in flight is not idle just
// because no new bytes have been read from it recently.
func (c *clientConn) busy() bool {
	return c.inFlight.Load() > 0
}

// handleEvent is C8's driver-event switch (§4.5), kept here rather than
// in a separate file since it is conn's own state transition table, not
// a reusable pipeline stage.
func (c *clientConn) handleEvent(ev Event) {
	switch ev.Kind {
	case HeadersOnly, EntityHeaders:
		c.dispatchRequest(ev)
	case EntityPart:
		if b := c.bodyFor(c.reqSeq); b != nil {
			b.Push(ev.Chunk)
		}
	case EntityComplete:
		if b := c.bodyFor(c.reqSeq); b != nil {
			b.Complete()
		}
	case SizeWarning:
		if b := c.bodyFor(c.reqSeq); b != nil {
			b.Fail(ErrBodyTooLarge)
		}
	case ParseError:
		c.abort(newParseError(ev.Status, ev.Msg))
	}
}

func (c *clientConn) bodyFor(seq int64) *Body {
	c.bodiesMu.Lock()
	defer c.bodiesMu.Unlock()
	return c.bodies[seq]
}

// abort writes a best-effort, empty-bodied error response header and
// closes the connection, used for ParseError and Feed errors. It does not
// check whether a response has already been started on the connection.
func (c *clientConn) abort(err error) {
	status := StatusBadRequest
	if pe, ok := err.(parseError); ok {
		status = pe.status
	}
	sink := c.driver.NewResponseSink(c, c.rwc, c.reqSeq)
	_ = sink.writeHeader(status, Header{ContentLength: []string{"0"}})
	c.closeNow()
}

func (c *clientConn) closeNow() {
	if c.state.Load() == int32(connExported) {
		return
	}
	c.state.Store(int32(connClosed))
	// Wake any response writer parked in pipelineSink.suspend so it sees
	// the closed state and returns ErrClientDisconnect.
	if c.suspendCond != nil {
		c.suspendMu.Lock()
		c.suspendCond.Broadcast()
		c.suspendMu.Unlock()
	}
	if c.rwc != nil {
		_ = c.rwc.Close()
	}
}

// export implements C12: hand the live socket off to an upgrader
// (e.g. driverws) without closing it. Once exported the connection
// goroutine returns without touching rwc again.
func (c *clientConn) export() (net.Conn, error) {
	if !c.exported.CompareAndSwap(false, true) {
		return nil, ErrExported
	}
	c.state.Store(int32(connExported))
	return c.rwc, nil
}

func (c *clientConn) finalize() {
	c.srv.unregisterConn(c)
	if c.exported.Load() {
		// Export already left the keep-alive queue and released the
		// admission slot; rwc now belongs to the upgrader.
		return
	}
	c.srv.keepAlive.Remove(c)
	c.srv.admission.Release(c.block)
	if c.rwc != nil {
		_ = c.rwc.Close()
	}
}

// dispatchRequest builds the dispatch-view Request/Response pair and
// hands it to the pre-app pipeline (C8, dispatch.go) on its own
// goroutine. Running it inline on the connection's read-loop goroutine
// would deadlock: a handler that reads the streamed request body (e.g.
// io.ReadAll(req.Body)) blocks in Body.Read waiting for a Push/Complete
// call that only this same goroutine could make for any body bytes
// still arriving in the *same* Feed batch (§4.5's "dispatch on
// ENTITY_HEADERS, response may start before body fully received"
// requires the handler to run concurrently with continued body
// delivery, not after it).
func (c *clientConn) dispatchRequest(ev Event) {
	c.reqSeq++
	seq := c.reqSeq

	if ev.Kind == EntityHeaders {
		c.bodiesMu.Lock()
		c.bodies[seq] = NewBody()
		c.bodiesMu.Unlock()
	}

	req := &Request{
		Method:      ev.Method,
		Path:        ev.Path,
		Proto:       ev.Proto,
		Header:      ev.Header,
		Host:        ev.Host,
		RemoteAddr:  c.rwc.RemoteAddr(),
		LocalAddr:   c.rwc.LocalAddr(),
		ArrivalTime: c.srv.clock.Now(),
		seq:         seq,
	}
	if ev.Kind == EntityHeaders {
		c.bodiesMu.Lock()
		req.Body = c.bodies[seq]
		c.bodiesMu.Unlock()
	}

	sink := c.driver.NewResponseSink(c, c.rwc, seq)
	if ps, ok := sink.(*pipelineSink); ok {
		ps.req = req
	}

	c.inFlight.Add(1)
	c.reqWG.Add(1)
	resp := NewResponse(sink, func(status int, bytesOut int64) {
		c.srv.monitor.observeRequest(req, status, bytesOut)
		c.bodiesMu.Lock()
		delete(c.bodies, seq)
		c.bodiesMu.Unlock()
		c.inFlight.Add(-1)
		c.reqWG.Done()
		c.srv.touchKeepAlive(c)
	})

	go c.runDispatch(req, resp)
}

// runDispatch runs the pre-app pipeline and application handler for one
// request. writeMu serializes it against any other request's dispatch
// on this same connection, so concurrent responses never interleave
// bytes on the wire (see the writeMu field comment on clientConn).
func (c *clientConn) runDispatch(req *Request, resp *Response) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.srv.dispatch(c, req, resp)
}
