package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySlidingWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := NewMemory(2, time.Minute)
	m.SetClock(func() time.Time { return now })
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		ok, err := m.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "запрос %d", i)
	}

	// Чужой ключ считается отдельно
	ok, _ := m.Allow(ctx, "u2")
	assert.True(t, ok)

	now = now.Add(time.Minute + time.Second)
	ok, _ = m.Allow(ctx, "u1")
	assert.True(t, ok)
}

func TestMemoryEvict(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := NewMemory(5, time.Minute)
	m.SetClock(func() time.Time { return now })
	ctx := context.Background()

	_, _ = m.Allow(ctx, "a")
	now = now.Add(30 * time.Second)
	_, _ = m.Allow(ctx, "b")
	require.Equal(t, 2, m.Len())

	assert.Equal(t, 1, m.Evict(now.Add(45*time.Second)))
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, m.Evict(now.Add(2*time.Minute)))
	assert.Equal(t, 0, m.Len())
}
