// Package driverhttp1 is the reference HTTP/1.1 driver (C7): it turns
// wire bytes into evserve.Events and frames evserve.Response writes back
// into HTTP/1.1 wire bytes, built on bufio/textproto/httpguts the same
// way the teacher's own (now-removed) request/conn readers were, plus
// golang.org/x/net/http/httpguts for header-value validation the
// teacher never had a library for.
package driverhttp1

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/badu/evserve"
)

// maxHeaderBytes bounds the header block the parser will buffer before
// giving up with a 431, mirroring §6's recognized-option intent even
// though the option itself lives on evserve.Options, not here.
const maxHeaderBytes = 1 << 20

// parser implements evserve.Parser: Feed accumulates bytes until a
// state transition fires zero or more Events.
type parser struct {
	buf   bytes.Buffer
	state parseState

	remaining int64 // bytes left in a Content-Length body
	chunked   *chunkedState
}

type parseState int

const (
	stateHeaders parseState = iota
	stateBody
	stateDone
	stateError
)

// NewParser constructs a fresh per-connection HTTP/1.1 parser.
func NewParser() evserve.Parser {
	return &parser{}
}

func (p *parser) Feed(data []byte) ([]evserve.Event, error) {
	p.buf.Write(data)
	var events []evserve.Event

	for {
		switch p.state {
		case stateError:
			return events, nil

		case stateDone:
			// The previous request is fully parsed; any further bytes
			// begin the next request on this connection.
			p.state = stateHeaders

		case stateHeaders:
			idx := bytes.Index(p.buf.Bytes(), []byte("\r\n\r\n"))
			if idx < 0 {
				if p.buf.Len() > maxHeaderBytes {
					p.state = stateError
					events = append(events, errEvent(evserve.StatusRequestHeaderTooLarge, "header block too large"))
					return events, nil
				}
				return events, nil
			}
			raw := p.buf.Next(idx + 4)
			ev, remaining, chunked, err := parseHeaderBlock(raw)
			if err != nil {
				p.state = stateError
				events = append(events, errEvent(evserve.StatusBadRequest, err.Error()))
				return events, nil
			}
			p.remaining = remaining
			p.chunked = chunked
			if remaining == 0 && chunked == nil {
				ev.Kind = evserve.HeadersOnly
				events = append(events, ev)
				p.state = stateDone
				continue
			}
			ev.Kind = evserve.EntityHeaders
			events = append(events, ev)
			p.state = stateBody

		case stateBody:
			if p.chunked != nil {
				done, evs, err := p.chunked.feed(&p.buf)
				events = append(events, evs...)
				if err != nil {
					p.state = stateError
					events = append(events, errEvent(evserve.StatusBadRequest, err.Error()))
					return events, nil
				}
				if !done {
					return events, nil
				}
				events = append(events, evserve.Event{Kind: evserve.EntityComplete})
				p.state = stateDone
				continue
			}

			n := int64(p.buf.Len())
			if n == 0 {
				return events, nil
			}
			if n > p.remaining {
				n = p.remaining
			}
			if n > 0 {
				chunk := make([]byte, n)
				p.buf.Read(chunk)
				events = append(events, evserve.Event{Kind: evserve.EntityPart, Chunk: chunk})
				p.remaining -= n
			}
			if p.remaining == 0 {
				events = append(events, evserve.Event{Kind: evserve.EntityComplete})
				p.state = stateDone
				continue
			}
			return events, nil
		}
	}
}

func errEvent(status int, msg string) evserve.Event {
	return evserve.Event{Kind: evserve.ParseError, Status: status, Msg: msg}
}

// parseHeaderBlock parses one request line + header block (already
// split off at the \r\n\r\n terminator) into an Event plus the body
// framing it implies.
func parseHeaderBlock(raw []byte) (evserve.Event, int64, *chunkedState, error) {
	r := bufio.NewReader(bytes.NewReader(raw))
	line, err := r.ReadString('\n')
	if err != nil {
		return evserve.Event{}, 0, nil, errMalformed("missing request line")
	}
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return evserve.Event{}, 0, nil, errMalformed("malformed request line")
	}
	method, path, proto := parts[0], parts[1], parts[2]
	if !httpguts.ValidMethod(method) {
		return evserve.Event{}, 0, nil, errMalformed("invalid method")
	}

	header := make(evserve.Header)
	for {
		hline, err := r.ReadString('\n')
		if err != nil || hline == "\r\n" || hline == "\n" || hline == "" {
			break
		}
		hline = strings.TrimRight(hline, "\r\n")
		if hline == "" {
			break
		}
		name, value, ok := strings.Cut(hline, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			continue
		}
		header.Add(name, value)
	}

	ev := evserve.Event{
		Method: method,
		Path:   path,
		Proto:  proto,
		Header: header,
		Host:   header.Get(evserve.Host),
	}

	if strings.EqualFold(header.Get(evserve.TransferEncoding), evserve.DoChunked) {
		return ev, 0, newChunkedState(), nil
	}
	if cl := header.Get(evserve.ContentLength); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return evserve.Event{}, 0, nil, errMalformed("invalid Content-Length")
		}
		return ev, n, nil, nil
	}
	return ev, 0, nil, nil
}

type malformedError string

func (e malformedError) Error() string { return string(e) }
func errMalformed(msg string) error    { return malformedError(msg) }
