package evserve

import (
	"bytes"
	"io"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCodec renders a trivial "STATUS n\n" line and hands back the
// destination writer unwrapped, recording whether Close was observed via
// closingWriter.
type fakeCodec struct{}

func (fakeCodec) WriteHeader(w io.Writer, status int, header Header) error {
	_, err := w.Write([]byte("STATUS " + strconv.Itoa(status) + "\n"))
	return err
}

func (fakeCodec) BodyWriter(w io.Writer) io.Writer {
	return &closingWriter{w: w}
}

type closingWriter struct {
	w      io.Writer
	closed bool
}

func (c *closingWriter) Write(p []byte) (int, error) { return c.w.Write(p) }
func (c *closingWriter) Close() error {
	c.closed = true
	_, err := c.w.Write([]byte("[END]"))
	return err
}

func newFakeSinkConn(hard, soft int64) *clientConn {
	c := &clientConn{
		srv: &Server{opts: Options{HardStreamCap: hard, SoftStreamCap: soft}},
	}
	c.suspendCond = sync.NewCond(&c.suspendMu)
	return c
}

func TestPipelineSinkWritesThroughCodecAndFilters(t *testing.T) {
	var buf bytes.Buffer
	conn := newFakeSinkConn(1<<20, 1<<19)
	sink := newPipelineSink(conn, &buf, fakeCodec{})

	require.NoError(t, sink.writeHeader(StatusOK, Header{}))
	n, err := sink.write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, sink.close())

	assert.Equal(t, "STATUS 200\nhello[END]", buf.String())
}

func TestPipelineSinkWriteBeforeHeaderFails(t *testing.T) {
	var buf bytes.Buffer
	conn := newFakeSinkConn(1<<20, 1<<19)
	sink := newPipelineSink(conn, &buf, fakeCodec{})

	_, err := sink.write([]byte("x"))
	assert.Error(t, err)
}

func TestPipelineSinkOutstandingReleasedAfterWriteCompletes(t *testing.T) {
	var buf bytes.Buffer
	conn := newFakeSinkConn(1<<20, 1<<19)
	sink := newPipelineSink(conn, &buf, fakeCodec{})
	require.NoError(t, sink.writeHeader(StatusOK, Header{}))

	_, err := sink.write([]byte("12345"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, conn.outstanding.Load())
}

func TestPipelineSinkSuspendBlocksPastHardCapAndResumesUnderSoftCap(t *testing.T) {
	conn := newFakeSinkConn(10, 4)
	conn.outstanding.Store(20)

	done := make(chan error, 1)
	go func() {
		sink := &pipelineSink{conn: conn}
		done <- sink.suspend()
	}()

	select {
	case <-done:
		t.Fatal("suspend returned before outstanding dropped under the hard cap")
	default:
	}

	conn.ackWrite(17) // outstanding now 3, under SoftStreamCap(4): broadcast wakes waiter
	err := <-done
	assert.NoError(t, err)
}

func TestPipelineSinkSuspendNoopWithoutConn(t *testing.T) {
	sink := &pipelineSink{}
	assert.NoError(t, sink.suspend())
}
