package driverhttp2

import (
	"bytes"
	"io"
	"strconv"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/badu/evserve"
)

// codec implements evserve.Codec by encoding a single HTTP/2 HEADERS
// frame (status + response headers via hpack) followed by DATA frames
// for the body, matching this package's one-stream-at-a-time scope.
type codec struct{}

// NewCodec builds the HTTP/2 Codec.
func NewCodec() evserve.Codec { return &codec{} }

func (c *codec) WriteHeader(w io.Writer, status int, header evserve.Header) error {
	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)
	_ = enc.WriteField(hpack.HeaderField{Name: ":status", Value: strconv.Itoa(status)})
	for k, vs := range header {
		for _, v := range vs {
			_ = enc.WriteField(hpack.HeaderField{Name: lowerASCII(k), Value: v})
		}
	}

	framer := http2.NewFramer(w, nil)
	return framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      1,
		BlockFragment: buf.Bytes(),
		EndHeaders:    true,
	})
}

func (c *codec) BodyWriter(w io.Writer) io.Writer {
	return &dataFrameWriter{w: w}
}

// dataFrameWriter frames each Write as one DATA frame. A production
// multiplexing implementation would respect peer flow-control windows
// here; this reference driver relies on IOGranularity-bounded writes
// instead (see package doc).
type dataFrameWriter struct {
	w      io.Writer
	framer *http2.Framer
}

func (d *dataFrameWriter) Write(p []byte) (int, error) {
	if d.framer == nil {
		d.framer = http2.NewFramer(d.w, nil)
	}
	if err := d.framer.WriteData(1, false, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (d *dataFrameWriter) Close() error {
	if d.framer == nil {
		d.framer = http2.NewFramer(d.w, nil)
	}
	return d.framer.WriteData(1, true, nil)
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
