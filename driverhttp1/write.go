package driverhttp1

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/badu/evserve"
)

// codec implements evserve.Codec for HTTP/1.1: status line + header
// block, then either identity framing (when Content-Length is set) or
// chunked transfer-coding (RFC 9112 §7.1) otherwise.
type codec struct {
	proto string // "HTTP/1.1" status-line proto token

	// identity records whether the most recent WriteHeader call included
	// a Content-Length, so the following BodyWriter call (always made
	// immediately after, per pipelineSink.writeHeader) knows which
	// framing to pick. Responses on one connection are produced one at a
	// time (the connection's writeMu is held for each request's whole
	// dispatch), so one codec instance per connection never has two
	// responses' framing decisions in flight at once.
	identity bool
}

// NewCodec builds the HTTP/1.1 Codec.
func NewCodec() evserve.Codec {
	return &codec{proto: evserve.HTTP1_1}
}

func (c *codec) WriteHeader(w io.Writer, status int, header evserve.Header) error {
	if _, err := fmt.Fprintf(w, "%s %d %s\r\n", c.proto, status, evserve.StatusText(status)); err != nil {
		return err
	}
	if header.Get(evserve.Date) == "" {
		header.Set(evserve.Date, time.Now().UTC().Format(evserve.TimeFormat))
	}
	c.identity = header.Get(evserve.ContentLength) != ""
	if !c.identity {
		header.Set(evserve.TransferEncoding, evserve.DoChunked)
	}
	if err := header.WriteSubset(w, nil); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

func (c *codec) BodyWriter(w io.Writer) io.Writer {
	if c.identity {
		return &identityWriter{w: w}
	}
	return &identityOrChunkedWriter{w: w}
}

// identityWriter passes body bytes through unframed, for responses that
// declared their own Content-Length.
type identityWriter struct{ w io.Writer }

func (b *identityWriter) Write(p []byte) (int, error) { return b.w.Write(p) }
func (b *identityWriter) Close() error                { return nil }

// identityOrChunkedWriter frames every write as a chunk, and Close always
// writes the terminating chunk, for responses with no declared
// Content-Length (WriteHeader has sent Transfer-Encoding: chunked), matching
// net/http's own ResponseWriter behavior that the teacher's response.go
// mirrored.
type identityOrChunkedWriter struct {
	w       io.Writer
	chunked *chunkedWriter
}

func (b *identityOrChunkedWriter) Write(p []byte) (int, error) {
	if b.chunked == nil {
		b.chunked = newChunkedWriter(b.w)
	}
	return b.chunked.Write(p)
}

func (b *identityOrChunkedWriter) Close() error {
	if b.chunked == nil {
		b.chunked = newChunkedWriter(b.w)
	}
	return b.chunked.Close()
}

// chunkedWriter frames writes as HTTP/1.1 chunks, named after the
// teacher's fragment-only chunkedWriter type (see chunked.go's doc
// comment) but implemented fresh.
type chunkedWriter struct {
	w io.Writer
}

func newChunkedWriter(w io.Writer) *chunkedWriter { return &chunkedWriter{w: w} }

func (c *chunkedWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := io.WriteString(c.w, strconv.FormatInt(int64(len(p)), 16)+"\r\n"); err != nil {
		return 0, err
	}
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := io.WriteString(c.w, "\r\n"); err != nil {
		return n, err
	}
	return n, nil
}

func (c *chunkedWriter) Close() error {
	_, err := io.WriteString(c.w, "0\r\n\r\n")
	return err
}
