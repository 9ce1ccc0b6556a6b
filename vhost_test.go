package evserve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVHostSetResolve(t *testing.T) {
	set := NewVHostSet()
	api := &VHost{Name: "api.example.com", Handler: HandlerFunc(func(*Response, *Request) {})}
	def := &VHost{Handler: HandlerFunc(func(*Response, *Request) {})}
	set.Register(api)
	set.Register(def)

	require.Equal(t, 2, set.Len())
	assert.Same(t, api, set.Resolve("API.example.com"))
	assert.Same(t, api, set.Resolve("api.example.com:8080"))
	assert.Same(t, def, set.Resolve("unknown.example.com"))
}

func TestVHostSetNoDefault(t *testing.T) {
	set := NewVHostSet()
	set.Register(&VHost{Name: "api.example.com"})
	assert.Nil(t, set.Resolve("other.example.com"))
}
