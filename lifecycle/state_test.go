package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateManagerStartsCreated(t *testing.T) {
	m := NewStateManager()
	assert.Equal(t, Created, m.Load())
	assert.True(t, m.CompletedAt().IsZero())
	assert.WithinDuration(t, time.Now(), m.CreatedAt(), time.Second)
}

func TestStateManagerTryTransitionRejectsWrongFrom(t *testing.T) {
	m := NewStateManager()
	require.False(t, m.TryTransition(Running, Suspended))
	assert.Equal(t, Created, m.Load())
}

func TestStateManagerTerminalTransitionStampsCompletionOnce(t *testing.T) {
	m := NewStateManager()
	require.True(t, m.TryTransition(Created, Running))
	require.True(t, m.TryTransition(Running, Completed))
	first := m.CompletedAt()
	assert.False(t, first.IsZero())

	// a forced re-publish must not overwrite the first completion stamp.
	time.Sleep(time.Millisecond)
	m.ForceTransition(Completed)
	assert.Equal(t, first, m.CompletedAt())
}

func TestCoroutineStateIsTerminal(t *testing.T) {
	assert.False(t, Created.IsTerminal())
	assert.False(t, Running.IsTerminal())
	assert.False(t, Suspended.IsTerminal())
	assert.True(t, Completed.IsTerminal())
	assert.True(t, Destroyed.IsTerminal())
	assert.True(t, Cancelled.IsTerminal())
}
