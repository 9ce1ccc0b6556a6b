package evserve

import "io"

// EventKind enumerates the six events a Driver emits while incrementally
// parsing bytes off the wire (§4.5, C7). The core never inspects wire
// bytes itself — that is the whole point of the driver seam — it only
// reacts to these events.
type EventKind int

const (
	// HeadersOnly fires once a request's header block is fully parsed
	// and the driver knows there is no entity (e.g. GET with no body).
	HeadersOnly EventKind = iota
	// EntityHeaders fires once the header block is parsed and an
	// entity is expected to follow.
	EntityHeaders
	// EntityPart fires for each chunk of entity body as it arrives.
	EntityPart
	// EntityComplete fires once the entity has been fully received.
	EntityComplete
	// SizeWarning fires when a body (request or, per driver
	// implementation, response) crosses the soft size threshold.
	SizeWarning
	// ParseError fires when the bytes on the wire cannot be parsed;
	// carries a status code and message (see parseError).
	ParseError
)

func (k EventKind) String() string {
	switch k {
	case HeadersOnly:
		return "HEADERS_ONLY"
	case EntityHeaders:
		return "ENTITY_HEADERS"
	case EntityPart:
		return "ENTITY_PART"
	case EntityComplete:
		return "ENTITY_COMPLETE"
	case SizeWarning:
		return "SIZE_WARNING"
	case ParseError:
		return "PARSE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is what a Driver hands back from Feed. Only the fields relevant
// to Kind are populated; the connection goroutine switches on Kind.
type Event struct {
	Kind EventKind

	// Populated on HeadersOnly/EntityHeaders.
	Method  string
	Path    string
	Proto   string
	Header  Header
	Host    string

	// Populated on EntityPart.
	Chunk []byte

	// Populated on SizeWarning/ParseError.
	Status int
	Msg    string
}

// Driver is C7's opaque contract: a protocol implementation (HTTP/1.1,
// HTTP/2, or a test fake) that turns bytes into Events and turns a
// Response's writes back into wire bytes. The core depends only on this
// interface, never on a concrete wire format — the seam that lets
// driverhttp1 and driverhttp2 share one dispatch/response pipeline.
//
// Grounded on the teacher's split between conn.go (connection state
// machine) and its request/response readers — generalized from "one
// hardcoded HTTP/1.1 implementation" into a pluggable contract, since
// the spec requires HTTP/1.1 *and* HTTP/2 to share C8/C9.
type Driver interface {
	// Feed gives the driver newly-read bytes; it returns zero or more
	// Events produced by consuming them (a single read can complete a
	// request and start the next one, pipelined).
	Feed(p []byte) ([]Event, error)

	// NewResponseSink returns the sink this driver wants wired into a
	// Response for the in-flight request identified by seq (HTTP/2
	// streams multiplex; HTTP/1.1 drivers can ignore seq). conn supplies
	// the backpressure/connection context the sink needs; it is never
	// nil when called from conn.go.
	NewResponseSink(conn *clientConn, w io.Writer, seq int64) responseSink

	// Proto identifies the protocol for logging/monitoring ("HTTP/1.1",
	// "HTTP/2").
	Proto() string
}

// DriverFactory constructs a Driver for a newly-accepted connection,
// given the negotiated protocol (via ALPN or a plaintext default). C4's
// acceptLoop calls it, after C5's negotiator has reported the protocol,
// to pick C7's implementation.
type DriverFactory func(proto string) Driver

// Parser is the externally-implementable half of a Driver: it turns
// wire bytes into Events. driverhttp1 and driverhttp2 each implement
// Parser; evserve combines a Parser with a Codec via NewDriver to
// produce something satisfying the (package-private-shaped) Driver
// contract above, so neither driver package needs to reference
// evserve's unexported *clientConn type directly.
type Parser interface {
	Feed(p []byte) ([]Event, error)
}

// genericDriver adapts any Parser+Codec pair into a Driver.
type genericDriver struct {
	proto   string
	parser  Parser
	codec   Codec
	filters []Filter
}

// NewDriver builds a Driver from a protocol name, a Parser, a Codec, and
// an optional ordered filter chain. This is the seam driverhttp1.New and
// driverhttp2.New are built on.
func NewDriver(proto string, parser Parser, codec Codec, filters ...Filter) Driver {
	return &genericDriver{proto: proto, parser: parser, codec: codec, filters: filters}
}

func (d *genericDriver) Feed(p []byte) ([]Event, error) { return d.parser.Feed(p) }

func (d *genericDriver) NewResponseSink(conn *clientConn, w io.Writer, seq int64) responseSink {
	return newPipelineSink(conn, w, d.codec, d.filters...)
}

func (d *genericDriver) Proto() string { return d.proto }
