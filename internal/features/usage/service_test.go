package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/features/wallet/wallettest"
	"serotonyl.ru/wallet-bot/internal/models"
)

func TestUseCreditsSpansBothBuckets(t *testing.T) {
	env := wallettest.New(t)
	svc := NewService(env.Wallet)
	env.Fund(t, 1, 1000, 500)

	res, err := svc.UseCredits(context.Background(), 1, Request{Amount: 1200, Service: "chat"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Balance.PackageTokensRemaining)
	assert.Equal(t, int64(300), res.Balance.IndependentTokens)
	assert.Equal(t, 1, res.Balance.DailyUsageCount)

	e := res.Entry
	assert.Equal(t, models.EntryExpense, e.Type)
	assert.Equal(t, models.BucketMixed, e.Bucket)
	assert.Equal(t, int64(1200), e.Amount)
	assert.Equal(t, int64(1000), e.PackageBefore)
	assert.Equal(t, int64(0), e.PackageAfter)
	assert.Equal(t, int64(500), e.IndependentBefore)
	assert.Equal(t, int64(300), e.IndependentAfter)

	usageEntries := 0
	for _, x := range env.Entries(t, 1) {
		if x.Reason == models.ReasonUsage {
			usageEntries++
		}
	}
	assert.Equal(t, 1, usageEntries)
	env.RequireLedgerMatches(t, 1)
}

func TestUseCreditsAllOrNothing(t *testing.T) {
	env := wallettest.New(t)
	svc := NewService(env.Wallet)
	env.Fund(t, 1, 1000, 500)

	_, err := svc.UseCredits(context.Background(), 1, Request{Amount: 2000, Service: "chat"})
	require.ErrorIs(t, err, common.ErrInsufficientCredits)

	b := env.Balance(t, 1)
	assert.Equal(t, int64(1000), b.PackageTokensRemaining)
	assert.Equal(t, int64(500), b.IndependentTokens)
	assert.Equal(t, 0, b.DailyUsageCount)
}

func TestUseCreditsValidation(t *testing.T) {
	env := wallettest.New(t)
	svc := NewService(env.Wallet)

	_, err := svc.UseCredits(context.Background(), 1, Request{Amount: 0, Service: "chat"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.UseCredits(context.Background(), 1, Request{Amount: 5, Service: "  "})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestDailyLimitResetsAtUTCMidnight(t *testing.T) {
	env := wallettest.New(t)
	svc := NewService(env.Wallet)
	ctx := context.Background()

	plan := *models.DefaultPlans()[0]
	plan.Code = "tiny"
	plan.DailyUsageLimit = 2
	plan.RecoveryRate = 0
	env.Store.PutPlan(&plan)
	env.Subscribe(t, 1, "tiny", 30)
	env.Fund(t, 1, 0, 100)

	for i := 0; i < 2; i++ {
		_, err := svc.UseCredits(ctx, 1, Request{Amount: 1, Service: "chat"})
		require.NoError(t, err)
	}
	_, err := svc.UseCredits(ctx, 1, Request{Amount: 1, Service: "chat"})
	require.ErrorIs(t, err, common.ErrDailyLimitExceeded)
	assert.Equal(t, int64(98), env.Balance(t, 1).IndependentTokens)

	// Start = 09:30 UTC, до полуночи 14.5 часов
	env.Clock.Advance(15 * time.Hour)
	res, err := svc.UseCredits(ctx, 1, Request{Amount: 1, Service: "chat"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Balance.DailyUsageCount)
}

func TestUseCreditsWithoutPlan(t *testing.T) {
	env := wallettest.New(t)
	env.Fund(t, 1, 0, 10)
	svc := NewService(env.Wallet)

	res, err := svc.UseCredits(context.Background(), 1, Request{Amount: 1, Service: "chat"})
	require.NoError(t, err)
	assert.Equal(t, models.BucketIndependent, res.Entry.Bucket)
	assert.Equal(t, 1_000_000, res.Balance.DailyUsageLimit)
}
