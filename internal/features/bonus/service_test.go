package bonus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/features/wallet/wallettest"
	"serotonyl.ru/wallet-bot/internal/models"
)

func TestGrantNewUserBonusOnce(t *testing.T) {
	env := wallettest.New(t)
	svc := NewService(env.Wallet, env.Cfg)
	ctx := context.Background()

	ok, err := svc.GrantNewUserBonus(ctx, 1, "password", "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.GrantNewUserBonus(ctx, 1, "oauth", "telegram")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, int64(100), env.Balance(t, 1).IndependentTokens)
	entries := env.Entries(t, 1)
	require.Len(t, entries, 1)
	assert.Equal(t, models.NewUserBonusMetadata{Source: "password"}, entries[0].Metadata)
}

func TestGrantNewUserBonusConcurrent(t *testing.T) {
	env := wallettest.New(t)
	svc := NewService(env.Wallet, env.Cfg)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			source := "password"
			if i%2 == 0 {
				source = "oauth"
			}
			ok, err := svc.GrantNewUserBonus(ctx, 7, source, "")
			assert.NoError(t, err)
			if ok {
				granted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
	assert.Equal(t, int64(100), env.Balance(t, 7).IndependentTokens)
	env.RequireLedgerMatches(t, 7)
}

func TestGrantNewUserBonusRequiresSource(t *testing.T) {
	env := wallettest.New(t)
	svc := NewService(env.Wallet, env.Cfg)

	_, err := svc.GrantNewUserBonus(context.Background(), 1, " ", "")
	require.ErrorIs(t, err, common.ErrValidation)
}
