// Package driverhttp2 is a reference HTTP/2 driver (C7) built on
// golang.org/x/net/http2's Framer and hpack codec. It is deliberately
// scoped to one active stream per connection at a time — full stream
// multiplexing is the one piece of RFC 9113 this reference
// implementation does not attempt: the dispatch/response
// pipeline (C8/C9) it feeds is identical to driverhttp1's, which is the
// point of the Driver seam.
package driverhttp2

import (
	"bytes"
	"errors"
	"io"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/badu/evserve"
)

const preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// parser implements evserve.Parser by running an http2.Framer over
// whatever bytes Feed accumulates in a buffer, handing it a frame only
// once the whole frame is buffered so ReadFrame never sees a partial one.
type parser struct {
	in     *bytes.Buffer
	framer *http2.Framer
	dec    *hpack.Decoder

	sawPreface bool
	curHeader  evserve.Event
	haveHeader bool
}

// NewParser builds a fresh per-connection HTTP/2 parser.
func NewParser() evserve.Parser {
	p := &parser{in: &bytes.Buffer{}}
	p.framer = http2.NewFramer(io.Discard, p.in)
	p.dec = hpack.NewDecoder(4096, nil)
	return p
}

func (p *parser) Feed(data []byte) ([]evserve.Event, error) {
	p.in.Write(data)

	if !p.sawPreface {
		if p.in.Len() < len(preface) {
			return nil, nil
		}
		got := make([]byte, len(preface))
		p.in.Read(got)
		if string(got) != preface {
			return nil, parseErr(evserve.StatusBadRequest, "missing HTTP/2 connection preface")
		}
		p.sawPreface = true
	}

	var events []evserve.Event
	for {
		// Not yet a complete frame (9-byte header plus its 24-bit
		// length) in the buffer: wait for more bytes from Feed.
		buffered := p.in.Bytes()
		if len(buffered) < 9 {
			return events, nil
		}
		size := int(buffered[0])<<16 | int(buffered[1])<<8 | int(buffered[2])
		if len(buffered) < 9+size {
			return events, nil
		}
		fr, err := p.framer.ReadFrame()
		if err != nil {
			return events, parseErr(evserve.StatusBadRequest, err.Error())
		}
		switch f := fr.(type) {
		case *http2.SettingsFrame:
			// Acknowledged implicitly; no state kept since this driver
			// negotiates nothing beyond defaults.
		case *http2.HeadersFrame:
			ev, err := p.decodeHeaders(f)
			if err != nil {
				return events, parseErr(evserve.StatusBadRequest, err.Error())
			}
			if f.StreamEnded() {
				ev.Kind = evserve.HeadersOnly
				events = append(events, ev)
			} else {
				ev.Kind = evserve.EntityHeaders
				events = append(events, ev)
			}
		case *http2.DataFrame:
			if len(f.Data()) > 0 {
				events = append(events, evserve.Event{Kind: evserve.EntityPart, Chunk: append([]byte(nil), f.Data()...)})
			}
			if f.StreamEnded() {
				events = append(events, evserve.Event{Kind: evserve.EntityComplete})
			}
		case *http2.PingFrame, *http2.WindowUpdateFrame, *http2.GoAwayFrame, *http2.RSTStreamFrame:
			// Connection-management frames this reference driver
			// acknowledges passively; flow control itself is delegated
			// to the caller's IOGranularity-bounded reads (§4.2).
		}
	}
}

func (p *parser) decodeHeaders(f *http2.HeadersFrame) (evserve.Event, error) {
	header := make(evserve.Header)
	var method, path, authority, scheme string

	fields, err := p.dec.DecodeFull(f.HeaderBlockFragment())
	if err != nil {
		return evserve.Event{}, err
	}
	for _, hf := range fields {
		switch hf.Name {
		case ":method":
			method = hf.Value
		case ":path":
			path = hf.Value
		case ":authority":
			authority = hf.Value
		case ":scheme":
			scheme = hf.Value
		default:
			if len(hf.Name) > 0 && hf.Name[0] != ':' {
				header.Add(hf.Name, hf.Value)
			}
		}
	}
	_ = scheme

	return evserve.Event{
		Method: method,
		Path:   path,
		Proto:  "HTTP/2",
		Header: header,
		Host:   authority,
	}, nil
}

// parseErr builds a plain error for driver-level failures; status is
// informational only here since conn.go's abort falls back to 400 for
// any error that isn't evserve's own internal parse-error type.
func parseErr(status int, msg string) error {
	_ = status
	return errors.New(msg)
}
