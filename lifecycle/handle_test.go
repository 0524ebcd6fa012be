package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeHandleDestroyIsIdempotent(t *testing.T) {
	calls := 0
	h := NewSafeHandle(func() { calls++ })
	assert.True(t, h.Valid())

	h.Destroy()
	h.Destroy()
	h.Destroy()

	assert.Equal(t, 1, calls)
	assert.False(t, h.Valid())
	assert.True(t, h.Done())
}

func TestSafeHandleDestroySwallowsPanic(t *testing.T) {
	h := NewSafeHandle(func() { panic("boom") })
	assert.NotPanics(t, func() { h.Destroy() })
	assert.True(t, h.Done())
}

func TestSafeHandleNilDestroyIsSafe(t *testing.T) {
	h := NewSafeHandle(nil)
	assert.NotPanics(t, func() { h.Destroy() })
}
