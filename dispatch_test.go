package evserve

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSink is a minimal responseSink for exercising dispatch without a
// real connection/codec.
type fakeSink struct {
	buf        bytes.Buffer
	status     int
	wroteHead  bool
	closed     bool
}

func (s *fakeSink) writeHeader(status int, header Header) error {
	s.status = status
	s.wroteHead = true
	return nil
}
func (s *fakeSink) write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *fakeSink) flush() error                { return nil }
func (s *fakeSink) close() error                { s.closed = true; return nil }
func (s *fakeSink) suspend() error              { return nil }

func newTestServer(t *testing.T, handler Handler) (*Server, *VHostSet) {
	t.Helper()
	opts := DefaultOptions()
	vhosts := NewVHostSet()
	vhosts.Register(&VHost{Handler: handler})
	srv := NewServer(opts, vhosts, nil, func(string) Driver { return nil }, nil)
	return srv, vhosts
}

func TestDispatchRejectsDisallowedMethod(t *testing.T) {
	srv, _ := newTestServer(t, HandlerFunc(func(*Response, *Request) {
		t.Fatal("handler must not run for a disallowed method")
	}))
	sink := &fakeSink{}
	resp := NewResponse(sink, nil)
	req := &Request{Method: "FOOBAR", Host: "x"}

	srv.dispatch(nil, req, resp)
	assert.Equal(t, StatusMethodNotAllowed, sink.status)
	assert.True(t, sink.closed)
}

func TestDispatchTraceEchoes(t *testing.T) {
	srv, _ := newTestServer(t, HandlerFunc(func(*Response, *Request) {
		t.Fatal("handler must not run for TRACE")
	}))
	sink := &fakeSink{}
	resp := NewResponse(sink, nil)
	req := &Request{Method: TRACE, Path: "/foo", Proto: HTTP1_1, Host: "x", Header: Header{}}

	srv.dispatch(nil, req, resp)
	assert.Equal(t, StatusOK, sink.status)
	assert.Contains(t, sink.buf.String(), "TRACE /foo HTTP/1.1")
}

func TestDispatchOptionsStar(t *testing.T) {
	srv, _ := newTestServer(t, HandlerFunc(func(*Response, *Request) {
		t.Fatal("handler must not run for OPTIONS *")
	}))
	sink := &fakeSink{}
	resp := NewResponse(sink, nil)
	req := &Request{Method: OPTIONS, Path: "*", Host: "x"}

	srv.dispatch(nil, req, resp)
	assert.Equal(t, StatusOK, sink.status)
	assert.True(t, sink.closed)
}

func TestDispatchNoMatchingVHost(t *testing.T) {
	opts := DefaultOptions()
	vhosts := NewVHostSet()
	vhosts.Register(&VHost{Name: "only.example.com", Handler: HandlerFunc(func(*Response, *Request) {
		t.Fatal("handler must not run")
	})})
	srv := NewServer(opts, vhosts, nil, func(string) Driver { return nil }, nil)

	sink := &fakeSink{}
	resp := NewResponse(sink, nil)
	req := &Request{Method: GET, Path: "/", Host: "other.example.com"}

	srv.dispatch(nil, req, resp)
	assert.Equal(t, StatusBadRequest, sink.status)
}

func TestDispatchHandlerRuns(t *testing.T) {
	called := false
	srv, _ := newTestServer(t, HandlerFunc(func(resp *Response, req *Request) {
		called = true
		resp.WriteHeader(StatusOK)
		_, _ = resp.Write([]byte("ok"))
	}))
	sink := &fakeSink{}
	resp := NewResponse(sink, nil)
	req := &Request{Method: GET, Path: "/", Host: "x"}

	srv.dispatch(nil, req, resp)
	require.True(t, called)
	assert.Equal(t, StatusOK, sink.status)
	assert.Equal(t, "ok", sink.buf.String())
	assert.True(t, sink.closed)
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	srv, _ := newTestServer(t, HandlerFunc(func(*Response, *Request) {
		panic("boom")
	}))
	sink := &fakeSink{}
	resp := NewResponse(sink, nil)
	req := &Request{Method: GET, Path: "/", Host: "x"}

	assert.NotPanics(t, func() {
		srv.dispatch(nil, req, resp)
	})
	assert.Equal(t, StatusInternalServerError, sink.status)
}
