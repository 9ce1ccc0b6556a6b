package evserve

import (
	"context"
	"net"
	"time"
)

// Request is the dispatch-view an application sees: a read-only snapshot
// of everything the driver parsed (HEADERS_ONLY/ENTITY_HEADERS), plus a
// handle on the streamed entity body. It intentionally replaces the
// teacher's request.go (a net/http.Request clone); the spec's dispatch
// view (§3 Data Model, "Request (dispatch view)") is narrower and
// carries connection/arrival bookkeeping the teacher's type never had.
type Request struct {
	Method     string
	Path       string // request-target, not yet split into path/query
	Query      string
	Proto      string // "HTTP/1.1", "HTTP/2", ...
	Header     Header
	Host       string
	RemoteAddr net.Addr
	LocalAddr  net.Addr
	TLS        bool

	// ArrivalTime is stamped when the connection dispatches the request
	// on HEADERS_ONLY or ENTITY_HEADERS (§4.5). C13 does not read it.
	ArrivalTime time.Time

	// ContentLength is not filled in by the core; it stays 0 unless the
	// caller sets it.
	ContentLength int64

	// Body streams the request entity; nil for methods/requests with no
	// entity. Reading past ENTITY_COMPLETE returns io.EOF.
	Body *Body

	// ctx is nil unless set through WithContext; the core never sets or
	// cancels it.
	ctx context.Context

	// seq is this request's 1-based index on its connection; it keys the
	// connection's map of streamed bodies.
	seq int64

	// vhost is the resolved VHost, set by the pre-app pipeline before
	// Handler.ServeHTTP runs.
	vhost *VHost

	// badFilterKeys and filterFailed implement §4.6's filter-recovery
	// protocol's Data Model fields: once a filter panics producing this
	// request's response, its Name() is blacklisted here and the flag is
	// raised, so any response still to be generated for this request
	// (error pages, the handler-panic fallback) excludes it up front
	// instead of discovering the same panic again.
	badFilterKeys map[string]bool
	filterFailed  bool
}

// markFilterBad records that the filter named name panicked producing a
// response for this request.
func (r *Request) markFilterBad(name string) {
	if r.badFilterKeys == nil {
		r.badFilterKeys = make(map[string]bool)
	}
	r.badFilterKeys[name] = true
	r.filterFailed = true
}

// FilterFailed reports whether any filter has panicked producing a
// response for this request.
func (r *Request) FilterFailed() bool { return r.filterFailed }

// excludeBadFilters returns filters with every blacklisted entry removed,
// preserving order.
func (r *Request) excludeBadFilters(filters []Filter) []Filter {
	if len(r.badFilterKeys) == 0 {
		return filters
	}
	out := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if !r.badFilterKeys[f.Name()] {
			out = append(out, f)
		}
	}
	return out
}

// Context returns the request's cancellation context. Handlers that
// spawn background work should select on Done() the same way
// net/http-style handlers do.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r with ctx replaced, mirroring
// net/http.Request.WithContext's contract (ctx must be non-nil).
func (r *Request) WithContext(ctx context.Context) *Request {
	if ctx == nil {
		panic("evserve: nil context")
	}
	r2 := new(Request)
	*r2 = *r
	r2.ctx = ctx
	return r2
}

// Seq returns this request's 1-based sequence number on its connection.
func (r *Request) Seq() int64 { return r.seq }

// CookieValue is a convenience accessor over the raw Cookie header.
func (r *Request) CookieValue(name string) (string, bool) {
	return CookieValue(r.Header.Get(CookieHeader), name)
}
