package evserve

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderSetGetAddDel(t *testing.T) {
	h := make(Header)
	h.Set(ContentType, "text/plain")
	assert.Equal(t, "text/plain", h.Get(ContentType))

	h.Add("X-Custom", "a")
	h.Add("X-Custom", "b")
	assert.Equal(t, []string{"a", "b"}, h.Values("X-Custom"))

	h.Set("X-Custom", "only")
	assert.Equal(t, []string{"only"}, h.Values("X-Custom"))

	h.Del("X-Custom")
	assert.Empty(t, h.Values("X-Custom"))
}

func TestHeaderCanonicalization(t *testing.T) {
	h := make(Header)
	h.Set("content-type", "text/html")
	assert.Equal(t, "text/html", h.Get("Content-Type"))
	assert.Equal(t, "Content-Type", CanonicalHeaderKey("content-type"))
}

func TestHeaderClone(t *testing.T) {
	h := make(Header)
	h.Set(ContentType, "a")
	clone := h.Clone()
	clone.Set(ContentType, "b")
	assert.Equal(t, "a", h.Get(ContentType))
	assert.Equal(t, "b", clone.Get(ContentType))
}

func TestHeaderWriteSubset(t *testing.T) {
	h := make(Header)
	h.Set(ContentType, "text/plain")
	h.Set(ContentLength, "5")

	var buf strings.Builder
	require.NoError(t, h.WriteSubset(&buf, map[string]bool{ContentLength: true}))

	out := buf.String()
	assert.Contains(t, out, "Content-Type: text/plain\r\n")
	assert.NotContains(t, out, "Content-Length")
}
