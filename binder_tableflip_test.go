package evserve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpgradeWithoutTableflipBinderFails(t *testing.T) {
	srv := &Server{binder: netBinder{}}
	assert.ErrorIs(t, srv.Upgrade(), errNotTableflip)
}

func TestNewTableflipBinderWrapsUpgrader(t *testing.T) {
	b := NewTableflipBinder(nil)
	_, ok := b.(*tableflipBinder)
	assert.True(t, ok)
}
