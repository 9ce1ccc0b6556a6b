package evserve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDropPrivilegesNoopWhenUserEmpty(t *testing.T) {
	assert.NoError(t, dropPrivileges(""))
}

func TestDropPrivilegesRejectsUnknownUser(t *testing.T) {
	assert.Error(t, dropPrivileges("evserve-nonexistent-user-xyz"))
}
