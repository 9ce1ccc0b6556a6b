package driverhttp2

import (
	"bytes"
	"testing"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/badu/evserve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeHeaderBlock(t *testing.T, fields []hpack.HeaderField) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)
	for _, f := range fields {
		require.NoError(t, enc.WriteField(f))
	}
	return buf.Bytes()
}

func TestParserDecodesHeadersOnlyRequest(t *testing.T) {
	var wire bytes.Buffer
	wire.WriteString(preface)
	framer := http2.NewFramer(&wire, nil)
	require.NoError(t, framer.WriteSettings())

	block := encodeHeaderBlock(t, []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/hello"},
		{Name: ":authority", Value: "example.com"},
		{Name: ":scheme", Value: "https"},
		{Name: "x-custom", Value: "yes"},
	})
	require.NoError(t, framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID: 1, BlockFragment: block, EndHeaders: true, EndStream: true,
	}))

	p := NewParser()
	events, err := p.Feed(wire.Bytes())
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, evserve.HeadersOnly, ev.Kind)
	assert.Equal(t, "GET", ev.Method)
	assert.Equal(t, "/hello", ev.Path)
	assert.Equal(t, "example.com", ev.Host)
	assert.Equal(t, "yes", ev.Header.Get("X-Custom"))
}

func TestParserDecodesEntityWithDataFrame(t *testing.T) {
	var wire bytes.Buffer
	wire.WriteString(preface)
	framer := http2.NewFramer(&wire, nil)
	require.NoError(t, framer.WriteSettings())

	block := encodeHeaderBlock(t, []hpack.HeaderField{
		{Name: ":method", Value: "POST"},
		{Name: ":path", Value: "/items"},
		{Name: ":authority", Value: "x"},
	})
	require.NoError(t, framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID: 1, BlockFragment: block, EndHeaders: true, EndStream: false,
	}))
	require.NoError(t, framer.WriteData(1, true, []byte("payload")))

	p := NewParser()
	events, err := p.Feed(wire.Bytes())
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, evserve.EntityHeaders, events[0].Kind)
	assert.Equal(t, evserve.EntityPart, events[1].Kind)
	assert.Equal(t, "payload", string(events[1].Chunk))
	assert.Equal(t, evserve.EntityComplete, events[2].Kind)
}

func TestParserRejectsMissingPreface(t *testing.T) {
	p := NewParser()
	_, err := p.Feed([]byte("not a preface at all but long enough bytes"))
	assert.Error(t, err)
}

func TestCodecWritesHeadersAndDataFrames(t *testing.T) {
	var buf bytes.Buffer
	c := NewCodec()
	header := evserve.Header{}
	header.Set("X-Test", "1")
	require.NoError(t, c.WriteHeader(&buf, evserve.StatusOK, header))

	body := c.BodyWriter(&buf)
	_, err := body.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, body.(interface{ Close() error }).Close())

	framer := http2.NewFramer(nil, &buf)
	dec := hpack.NewDecoder(4096, nil)

	fr, err := framer.ReadFrame()
	require.NoError(t, err)
	hf, ok := fr.(*http2.HeadersFrame)
	require.True(t, ok)
	fields, err := dec.DecodeFull(hf.HeaderBlockFragment())
	require.NoError(t, err)
	assert.Equal(t, ":status", fields[0].Name)
	assert.Equal(t, "200", fields[0].Value)

	fr, err = framer.ReadFrame()
	require.NoError(t, err)
	df, ok := fr.(*http2.DataFrame)
	require.True(t, ok)
	assert.Equal(t, "hi", string(df.Data()))
	assert.False(t, df.StreamEnded())

	fr, err = framer.ReadFrame()
	require.NoError(t, err)
	df2, ok := fr.(*http2.DataFrame)
	require.True(t, ok)
	assert.True(t, df2.StreamEnded())
}
