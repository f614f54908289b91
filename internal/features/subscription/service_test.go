package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/features/referral"
	"serotonyl.ru/wallet-bot/internal/features/wallet/wallettest"
	"serotonyl.ru/wallet-bot/internal/models"
)

const day = 24 * time.Hour

func newTestService(t *testing.T) (*Service, *referral.Service, *wallettest.Env) {
	env := wallettest.New(t)
	ref := referral.NewService(env.Wallet, env.Cfg)
	return NewService(env.Wallet, ref, env.Cfg), ref, env
}

func TestPaymentActivatesPlanAndRefills(t *testing.T) {
	svc, _, env := newTestService(t)
	ctx := context.Background()

	res, err := svc.HandlePaymentSettled(ctx, PaymentEvent{OrderNo: "ORD-1", Amount: 29900, PayerID: 1, PlanCode: "basic"})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	require.NotNil(t, res.Subscription)
	assert.Equal(t, "basic", res.Subscription.PlanCode)
	assert.Equal(t, wallettest.Start.Add(30*day), res.Subscription.ExpiresAt)

	b := env.Balance(t, 1)
	assert.Equal(t, int64(100), b.PackageTokensRemaining)
	assert.Equal(t, "basic", b.PlanCode)
	assert.Equal(t, wallettest.Start, b.LastRecoveryAt)

	entries := env.Entries(t, 1)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ReasonPackageRenewal, entries[0].Reason)
	meta, ok := entries[0].Metadata.(models.PackageRenewalMetadata)
	require.True(t, ok)
	assert.Equal(t, models.RenewalActivation, meta.Kind)
	assert.Equal(t, SourcePayment, meta.Source)
	assert.Equal(t, "ORD-1", meta.OrderNo)
}

func TestDuplicatePaymentIsIgnored(t *testing.T) {
	svc, _, env := newTestService(t)
	ctx := context.Background()
	evt := PaymentEvent{OrderNo: "ORD-1", Amount: 29900, PayerID: 1, PlanCode: "basic"}

	_, err := svc.HandlePaymentSettled(ctx, evt)
	require.NoError(t, err)
	env.Fund(t, 1, 40, 0)

	res, err := svc.HandlePaymentSettled(ctx, evt)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Nil(t, res.Subscription)
	assert.Equal(t, int64(40), env.Balance(t, 1).PackageTokensRemaining)

	cur, err := svc.Current(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, wallettest.Start.Add(30*day), cur.ExpiresAt)
}

func TestSamePlanExtendsFromExpiry(t *testing.T) {
	svc, _, env := newTestService(t)
	ctx := context.Background()

	_, err := svc.HandlePaymentSettled(ctx, PaymentEvent{OrderNo: "A", PayerID: 1, PlanCode: "pro", Days: 30})
	require.NoError(t, err)
	env.Clock.Advance(10 * day)

	res, err := svc.HandlePaymentSettled(ctx, PaymentEvent{OrderNo: "B", PayerID: 1, PlanCode: "pro", Days: 30})
	require.NoError(t, err)
	assert.Equal(t, wallettest.Start, res.Subscription.StartedAt)
	assert.Equal(t, wallettest.Start.Add(60*day), res.Subscription.ExpiresAt)
	env.RequireLedgerMatches(t, 1)
}

func TestUpgradeReplacesAndDowngradeFails(t *testing.T) {
	svc, _, env := newTestService(t)
	ctx := context.Background()

	_, err := svc.HandlePaymentSettled(ctx, PaymentEvent{OrderNo: "A", PayerID: 1, PlanCode: "pro"})
	require.NoError(t, err)

	_, err = svc.HandlePaymentSettled(ctx, PaymentEvent{OrderNo: "B", PayerID: 1, PlanCode: "basic"})
	require.ErrorIs(t, err, common.ErrDowngradeNotAllowed)

	env.Clock.Advance(day)
	res, err := svc.HandlePaymentSettled(ctx, PaymentEvent{OrderNo: "C", PayerID: 1, PlanCode: "ultra", Days: 7})
	require.NoError(t, err)
	assert.Equal(t, "ultra", res.Subscription.PlanCode)
	assert.Equal(t, wallettest.Start.Add(8*day), res.Subscription.ExpiresAt)
	assert.Equal(t, int64(2000), env.Balance(t, 1).PackageTokensRemaining)

	// Отклонённый платёж не сохранился и может прийти снова
	env.Clock.Advance(10 * day)
	_, err = svc.HandlePaymentSettled(ctx, PaymentEvent{OrderNo: "B", PayerID: 1, PlanCode: "basic"})
	require.NoError(t, err)
	// Остаток ультра выше лимита базового тарифа и списывается
	assert.Equal(t, int64(100), env.Balance(t, 1).PackageTokensRemaining)
	env.RequireLedgerMatches(t, 1)
}

func TestActivationTrimsPackageAboveNewCap(t *testing.T) {
	svc, _, env := newTestService(t)
	ctx := context.Background()

	_, err := svc.ActivatePlan(ctx, 1, "ultra", 1, "admin")
	require.NoError(t, err)
	env.Fund(t, 1, 2000, 5)
	env.Clock.Advance(2 * day)

	_, err = svc.ActivatePlan(ctx, 1, "basic", 30, "admin")
	require.NoError(t, err)
	b := env.Balance(t, 1)
	assert.Equal(t, int64(100), b.PackageTokensRemaining)
	assert.Equal(t, int64(5), b.IndependentTokens)

	last := env.Entries(t, 1)[0]
	assert.Equal(t, models.ReasonPackageRenewal, last.Reason)
	assert.Equal(t, models.EntryExpense, last.Type)
	assert.Equal(t, int64(1900), last.Amount)
	env.RequireLedgerMatches(t, 1)
}

func TestPaymentIssuesReferralRewardOnce(t *testing.T) {
	svc, ref, env := newTestService(t)
	ctx := context.Background()

	ic, err := ref.EnsureUserInviteCode(ctx, 1)
	require.NoError(t, err)
	attached, err := ref.AttachReferralByCode(ctx, 2, ic.Code)
	require.NoError(t, err)
	require.True(t, attached)

	res, err := svc.HandlePaymentSettled(ctx, PaymentEvent{OrderNo: "A", Amount: 29900, PayerID: 2, PlanCode: "basic"})
	require.NoError(t, err)
	assert.True(t, res.ReferralRewarded)

	res, err = svc.HandlePaymentSettled(ctx, PaymentEvent{OrderNo: "B", Amount: 29900, PayerID: 2})
	require.NoError(t, err)
	assert.False(t, res.ReferralRewarded)
	assert.Nil(t, res.Subscription)

	assert.Equal(t, int64(100), env.Balance(t, 2).IndependentTokens)
	assert.Equal(t, int64(200), env.Balance(t, 1).IndependentTokens)
	env.RequireLedgerMatches(t, 1)
	env.RequireLedgerMatches(t, 2)
}

func TestPaymentValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.HandlePaymentSettled(ctx, PaymentEvent{PayerID: 1})
	require.ErrorIs(t, err, common.ErrValidation)
	_, err = svc.HandlePaymentSettled(ctx, PaymentEvent{OrderNo: "A"})
	require.ErrorIs(t, err, common.ErrValidation)
	_, err = svc.HandlePaymentSettled(ctx, PaymentEvent{OrderNo: "A", PayerID: 1, PlanCode: "gold"})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestPlansAreSortedByTier(t *testing.T) {
	svc, _, _ := newTestService(t)
	plans, err := svc.Plans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, []string{"basic", "pro", "ultra"}, []string{plans[0].Code, plans[1].Code, plans[2].Code})
}
