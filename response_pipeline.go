package evserve

import (
	"bytes"
	"io"
	"sync"
)

// Codec is the wire-framing half of C9: it knows how to write a status
// line/header block and how to frame body bytes (chunked transfer,
// HTTP/2 DATA frames, ...). Drivers supply one; the pipeline supplies
// everything protocol-agnostic around it (filters, backpressure,
// completion bookkeeping).
type Codec interface {
	// WriteHeader writes the status line and header block to w.
	WriteHeader(w io.Writer, status int, header Header) error
	// BodyWriter returns the writer body bytes are framed through; if it
	// implements io.Closer, Close is called once at response end to
	// flush any final framing (e.g. the terminating chunk).
	BodyWriter(w io.Writer) io.Writer
}

// pipelineSink is the concrete responseSink every driver package wires
// a Response to: filter chain -> codec -> conn, with soft/hard stream
// cap backpressure against the owning clientConn.
//
// Grounded on badu-http/timeout_writer.go and logging_conn.go's layered
// io.Writer wrapping, composed here with the spec's explicit backpressure
// thresholds (§4.6), which the teacher's types never modeled.
type pipelineSink struct {
	conn    *clientConn
	w       io.Writer
	codec   Codec
	filters []Filter

	// req is the request this sink's response belongs to, set by
	// dispatchRequest once both exist. Used only to thread the
	// filter-recovery blacklist (§4.6); nil in sink-only tests.
	req *Request

	mu     sync.Mutex
	chain  *FilterChain
	tail   io.Writer
	opened bool
}

// newPipelineSink builds a sink for one response, given the filters to
// apply in order (outermost first).
func newPipelineSink(conn *clientConn, w io.Writer, codec Codec, filters ...Filter) *pipelineSink {
	return &pipelineSink{conn: conn, w: w, codec: codec, filters: filters}
}

func (s *pipelineSink) writeHeader(status int, header Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil
	}
	s.opened = true
	if err := s.codec.WriteHeader(s.w, status, header); err != nil {
		return err
	}
	s.tail = s.codec.BodyWriter(s.w)
	s.chain = NewFilterChain(s.tail, s.filtersExcludingBad()...)
	s.chain.onDrop = s.onFilterDrop
	return nil
}

// filtersExcludingBad drops any filter already blacklisted on s.req.
func (s *pipelineSink) filtersExcludingBad() []Filter {
	if s.req == nil {
		return s.filters
	}
	return s.req.excludeBadFilters(s.filters)
}

// onFilterDrop is wired as every FilterChain's onDrop so a panic
// anywhere in this response's body production also raises the
// request-level blacklist, not just the chain-local in-place degrade.
func (s *pipelineSink) onFilterDrop(name string) {
	if s.req != nil {
		s.req.markFilterBad(name)
	}
}

// write accounts p against outstanding for the duration of the
// underlying write only: bumped before the write starts (so a
// concurrent stream's suspend sees it), released via ackWrite once the
// write returns, since by then the bytes are already handed to the
// connection's Write syscall and no longer "in flight" from this
// sink's perspective.
func (s *pipelineSink) write(p []byte) (int, error) {
	s.mu.Lock()
	chain := s.chain
	s.mu.Unlock()
	if chain == nil {
		return 0, io.ErrClosedPipe
	}
	if s.conn != nil {
		s.conn.outstanding.Add(int64(len(p)))
		defer s.conn.ackWrite(len(p))
	}
	return chain.Write(p)
}

func (s *pipelineSink) close() error {
	s.mu.Lock()
	chain := s.chain
	tail := s.tail
	s.mu.Unlock()
	if chain == nil {
		return nil
	}
	err := chain.Close()
	if c, ok := tail.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// atomicSink is implemented by sinks that can pre-validate a small,
// fully-buffered response against the filter chain before any bytes
// reach the wire. Framework-generated responses (fast-path errors, the
// TRACE echo, the handler-panic fallback) go through this instead of
// writeHeader+write, since those are exactly "the error response" §4.6's
// filter-recovery protocol means to regenerate: a filter that panics
// producing one is blacklisted on the request and the whole thing is
// retried excluding it, bounded since each attempt drops at least one
// filter, until a clean attempt succeeds or no filters remain.
//
// A streaming application response cannot use this (its body isn't known
// upfront and its header may already be on the wire by the time a filter
// panics), which is why pipelineSink.write still only has the chain's
// own in-place degrade (filters.go) to fall back on.
type atomicSink interface {
	writeAtomic(status int, header Header, body []byte, req *Request) error
}

func (s *pipelineSink) writeAtomic(status int, header Header, body []byte, req *Request) error {
	filters := s.filters
	if req != nil {
		filters = req.excludeBadFilters(filters)
	}
	for {
		var buf bytes.Buffer
		var dropped []string
		chain := NewFilterChain(&buf, filters...)
		chain.onDrop = func(name string) { dropped = append(dropped, name) }
		_, _ = chain.Write(body)
		_ = chain.Close()

		if len(dropped) == 0 {
			return s.commit(status, header, buf.Bytes())
		}
		if req != nil {
			for _, name := range dropped {
				req.markFilterBad(name)
			}
		}
		if len(chain.filters) == 0 {
			// nothing left to retry with; ship what the last attempt
			// produced rather than loop forever.
			return s.commit(status, header, buf.Bytes())
		}
		filters = chain.filters
	}
}

func (s *pipelineSink) commit(status int, header Header, body []byte) error {
	if err := s.writeHeader(status, header); err != nil {
		return err
	}
	_, err := s.write(body)
	return err
}

func (s *pipelineSink) flush() error {
	if f, ok := s.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

type flusher interface{ Flush() error }

// suspend blocks the writing goroutine on the connection's suspendCond
// while outstanding bytes exceed HardStreamCap (§4.6). The waiter is
// woken by ackWrite, which pipelineSink.write calls when each of its
// writes returns, and by closeNow, after which suspend returns
// ErrClientDisconnect.
func (s *pipelineSink) suspend() error {
	if s.conn == nil {
		return nil
	}
	limit := s.conn.srv.opts.HardStreamCap
	if limit <= 0 {
		return nil
	}
	s.conn.suspendMu.Lock()
	defer s.conn.suspendMu.Unlock()
	for s.conn.outstanding.Load() > limit {
		if s.conn.state.Load() == int32(connClosed) || s.conn.state.Load() == int32(connExported) {
			return ErrClientDisconnect
		}
		s.conn.suspendCond.Wait()
	}
	return nil
}

// ackWrite is called by pipelineSink.write once a write through the
// filter chain and codec returns, releasing backpressure once the stream falls
// back under SoftStreamCap — the hysteresis named in §4.6 so a sink
// doesn't thrash right at the boundary.
func (c *clientConn) ackWrite(n int) {
	if c.outstanding.Add(-int64(n)) <= c.srv.opts.SoftStreamCap {
		c.suspendCond.Broadcast()
	}
}
