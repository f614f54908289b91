package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"serotonyl.ru/wallet-bot/internal/ratelimit"
)

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestThrottle(t *testing.T) {
	ctx := context.Background()
	th := NewThrottle(ratelimit.NewMemory(2, time.Minute))

	assert.True(t, th.Allow(ctx, 1))
	assert.True(t, th.Allow(ctx, 1))
	assert.False(t, th.Allow(ctx, 1))
	assert.True(t, th.Allow(ctx, 2), "лимит считается на пользователя")

	assert.True(t, NewThrottle(brokenLimiter{}).Allow(ctx, 1))
	assert.True(t, NewThrottle(nil).Allow(ctx, 1))
}

func TestRecoverFromPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		defer RecoverFromPanic(42)
		panic("boom")
	})
}
