package evserve

import (
	"bufio"
	"io"
	"sync"
)

// Response is the object applications write to (§4.6). It buffers header
// mutations until the first byte is written or WriteHeader is called
// (status line locked in), then streams body writes through the filter
// chain and codec maintained by the response pipeline.
//
// Grounded on badu-http/response.go's ResponseWriter-shaped accessors,
// generalized so the underlying sink is the response pipeline's filter
// chain rather than a direct bufio.Writer.
type Response struct {
	Header Header

	mu          sync.Mutex
	wroteHeader bool
	finished    bool
	status      int
	aborted     bool
	softTripped bool // backpressure: soft cap crossed at least once

	sink   responseSink
	onDone func(status int, bytesOut int64)

	bytesOut int64
}

// responseSink is implemented by the response pipeline (C9); kept as an
// interface so Response itself never knows about filters/codecs/conn
// plumbing.
type responseSink interface {
	writeHeader(status int, header Header) error
	write(p []byte) (int, error)
	flush() error
	// close flushes any buffered filter/codec state (e.g. the final
	// chunk) once the response is complete.
	close() error
	// suspend blocks the caller while the stream is above HardStreamCap
	// (§4.6 backpressure), returning early with ErrClientDisconnect if
	// the connection is closed or exported while blocked.
	suspend() error
}

// NewResponse wires a Response to its pipeline sink. onDone, if non-nil,
// is invoked exactly once when the response completes (success or
// abort), for C13 accounting.
func NewResponse(sink responseSink, onDone func(status int, bytesOut int64)) *Response {
	return &Response{
		Header: make(Header),
		sink:   sink,
		onDone: onDone,
	}
}

// WriteHeader locks in the status line and header block. Calling it more
// than once is a no-op after the first, matching net/http's
// ResponseWriter contract that the teacher's own response.go follows.
func (r *Response) WriteHeader(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	_ = r.sink.writeHeader(status, r.Header)
}

// Write streams p through the filter chain, implicitly calling
// WriteHeader(StatusOK) first if it wasn't called explicitly — the same
// implicit-200 contract net/http.ResponseWriter has, which the teacher's
// response.go also follows.
func (r *Response) Write(p []byte) (int, error) {
	r.mu.Lock()
	if r.aborted {
		r.mu.Unlock()
		return 0, ErrClientDisconnect
	}
	if !r.wroteHeader {
		r.wroteHeader = true
		r.status = StatusOK
		if err := r.sink.writeHeader(StatusOK, r.Header); err != nil {
			r.mu.Unlock()
			return 0, err
		}
	}
	r.mu.Unlock()

	if err := r.sink.suspend(); err != nil {
		return 0, err
	}
	n, err := r.sink.write(p)
	r.mu.Lock()
	r.bytesOut += int64(n)
	r.mu.Unlock()
	return n, err
}

// writeAtomic sends a framework-generated, fully-buffered response
// (§4.6's filter-recovery protocol: "the error response is regenerated
// excluding bad filters, retried until no filter throws"). If the sink
// supports pre-validating the body against the filter chain
// (atomicSink), that path is used so a panicking filter never leaves a
// half-written response on the wire; otherwise this degrades to the
// ordinary WriteHeader+Write a streaming response uses.
func (r *Response) writeAtomic(req *Request, status int, body []byte) {
	r.mu.Lock()
	if r.wroteHeader {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if as, ok := r.sink.(atomicSink); ok {
		if err := as.writeAtomic(status, r.Header, body, req); err == nil {
			r.mu.Lock()
			r.wroteHeader = true
			r.status = status
			r.bytesOut += int64(len(body))
			r.mu.Unlock()
			return
		}
	}
	r.WriteHeader(status)
	_, _ = r.Write(body)
}

// Flush pushes any buffered bytes to the connection immediately,
// matching the teacher's http.Flusher support.
func (r *Response) Flush() {
	_ = r.sink.flush()
}

// Abort marks the response aborted, the escape hatch exposed for the
// SIZE_WARNING open question (spec §9): a responder can choose to stop
// writing rather than drain. Later Writes return ErrClientDisconnect.
// Abort neither closes the connection nor suppresses the final framing
// that finish writes when the response completes.
func (r *Response) Abort() {
	r.mu.Lock()
	if r.aborted {
		r.mu.Unlock()
		return
	}
	r.aborted = true
	r.mu.Unlock()
}

// Status returns the locked-in status code, or 0 before WriteHeader.
func (r *Response) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// finish is called by the response pipeline once the last byte has been
// flushed to the connection; it fires onDone exactly once.
func (r *Response) finish() {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true
	status, bytesOut := r.status, r.bytesOut
	done := r.onDone
	r.onDone = nil
	r.mu.Unlock()

	_ = r.sink.close()
	if done != nil {
		done(status, bytesOut)
	}
}

// bufferedWriter is a small helper filters use to adapt an io.Writer
// sink to bufio, mirroring the teacher's own liberal use of bufio around
// every connection-facing writer.
func bufferedWriter(w io.Writer) *bufio.Writer {
	return bufio.NewWriterSize(w, 4096)
}
