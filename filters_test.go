package evserve

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upperFilter struct{}

func (upperFilter) Name() string { return "upper" }
func (upperFilter) Write(next io.Writer, p []byte) (int, error) {
	return next.Write([]byte(strings.ToUpper(string(p))))
}
func (upperFilter) Close(next io.Writer) error { return nil }

type panicFilter struct{}

func (panicFilter) Name() string { return "panics" }
func (panicFilter) Write(next io.Writer, p []byte) (int, error) {
	panic("boom")
}
func (panicFilter) Close(next io.Writer) error { return nil }

func TestFilterChainTransforms(t *testing.T) {
	var buf bytes.Buffer
	chain := NewFilterChain(&buf, upperFilter{})
	n, err := chain.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "HELLO", buf.String())
}

func TestFilterChainRecoversPanickingFilter(t *testing.T) {
	var buf bytes.Buffer
	chain := NewFilterChain(&buf, panicFilter{}, upperFilter{})

	n, err := chain.Write([]byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "OK", buf.String(), "the panicking filter is dropped, the rest of the chain still runs")

	// The panicking filter must be gone from the chain for good.
	buf.Reset()
	_, err = chain.Write([]byte("again"))
	require.NoError(t, err)
	assert.Equal(t, "AGAIN", buf.String())
}
