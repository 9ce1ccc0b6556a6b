package evserve

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodyStreamsChunksThenEOF(t *testing.T) {
	b := NewBody()
	b.Push([]byte("hello "))
	b.Push([]byte("world"))
	b.Complete()

	got, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestBodyFailPropagates(t *testing.T) {
	b := NewBody()
	b.Push([]byte("partial"))
	b.Fail(ErrBodyTooLarge)

	buf := make([]byte, 7)
	n, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "partial", string(buf[:n]))

	_, err = b.Read(buf)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestBodyCloseUnblocksReader(t *testing.T) {
	b := NewBody()
	done := make(chan error, 1)
	go func() {
		_, err := b.Read(make([]byte, 1))
		done <- err
	}()

	b.Close()
	err := <-done
	assert.ErrorIs(t, err, ErrBodyClosed)
}
