package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmptyAllowlistIsOpen(t *testing.T) {
	svc := New(nil)
	assert.True(t, svc.IsAllowed(1))
	assert.Empty(t, svc.List())
}

func TestAllowlist(t *testing.T) {
	svc := New([]int64{20, 10})
	assert.True(t, svc.IsAllowed(10))
	assert.True(t, svc.IsAllowed(20))
	assert.False(t, svc.IsAllowed(30))

	svc.Allow(30)
	assert.True(t, svc.IsAllowed(30))
	assert.Equal(t, []int64{10, 20, 30}, svc.List())
}
