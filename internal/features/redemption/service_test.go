package redemption

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/db"
	"serotonyl.ru/wallet-bot/internal/features/wallet/wallettest"
	"serotonyl.ru/wallet-bot/internal/models"
)

func newTestService(t *testing.T) (*Service, *wallettest.Env) {
	env := wallettest.New(t)
	return NewService(env.Wallet, env.Cfg), env
}

func generate(t *testing.T, svc *Service, req GenerateRequest) []string {
	t.Helper()
	batch, err := svc.GenerateBatch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, batch.Codes, req.Quantity)
	return batch.Codes
}

func TestGenerateCodeFormat(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateCode("PROMO", 3)
		require.NoError(t, err)
		assert.Len(t, code, len("PROMO-XXXX-XXXX-XXXX"))
		assert.True(t, strings.HasPrefix(code, "PROMO-"))
		assert.True(t, models.ValidCodeFormat(code), code)
	}
}

func TestGenerateBatchValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]GenerateRequest{
		"пустой префикс":    {Prefix: "", Quantity: 1, CodeType: models.CodeTypeCredits, CodeValue: "10"},
		"префикс с дефисом": {Prefix: "A-B", Quantity: 1, CodeType: models.CodeTypeCredits, CodeValue: "10"},
		"ноль кодов":        {Prefix: "A", Quantity: 0, CodeType: models.CodeTypeCredits, CodeValue: "10"},
		"слишком много":     {Prefix: "A", Quantity: 1001, CodeType: models.CodeTypeCredits, CodeValue: "10"},
		"нулевая сумма":     {Prefix: "A", Quantity: 1, CodeType: models.CodeTypeCredits, CodeValue: "0"},
		"нет тарифа":        {Prefix: "A", Quantity: 1, CodeType: models.CodeTypePlan, CodeValue: "gold", ValidDays: 30},
		"тариф без срока":   {Prefix: "A", Quantity: 1, CodeType: models.CodeTypePlan, CodeValue: "pro"},
		"неизвестный тип":   {Prefix: "A", Quantity: 1, CodeType: "gift", CodeValue: "1"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.GenerateBatch(ctx, req)
			require.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestGenerateBatchSharesBatchID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	batch, err := svc.GenerateBatch(ctx, GenerateRequest{
		Prefix: "spring", Quantity: 25, CodeType: models.CodeTypeCredits, CodeValue: "50", CreatedBy: 7,
	})
	require.NoError(t, err)
	require.Len(t, batch.Codes, 25)

	codes, err := svc.ListBatch(ctx, batch.BatchID)
	require.NoError(t, err)
	require.Len(t, codes, 25)
	for _, c := range codes {
		assert.True(t, strings.HasPrefix(c.Code, "SPRING-"))
		assert.Equal(t, models.CodeActive, c.Status)
		assert.Equal(t, int64(7), c.CreatedBy)
	}
}

func TestRedeemCredits(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	code := generate(t, svc, GenerateRequest{Prefix: "GIFT", Quantity: 1, CodeType: models.CodeTypeCredits, CodeValue: "300"})[0]

	res, err := svc.Redeem(ctx, 1, "  "+strings.ToLower(code)+" ")
	require.NoError(t, err)
	assert.Equal(t, int64(300), res.Credits)
	assert.Equal(t, int64(300), res.Balance.IndependentTokens)

	entries := env.Entries(t, 1)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ReasonRedemption, entries[0].Reason)
	assert.Equal(t, models.BucketIndependent, entries[0].Bucket)
	meta := entries[0].Metadata.(models.RedemptionMetadata)
	assert.Equal(t, code, meta.Code)

	_, err = svc.Redeem(ctx, 2, code)
	require.ErrorIs(t, err, common.ErrCodeAlreadyUsed)
	_, err = svc.Redeem(ctx, 1, code)
	require.ErrorIs(t, err, common.ErrCodeAlreadyUsed)
}

func TestRedeemImportedCodeWithLongPrefix(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	const code = "PARTNERSPRING2026X-AB12-CD34"

	err := env.Store.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		ok, err := tx.InsertCode(ctx, &models.RedemptionCode{
			Code:      code,
			BatchID:   "00000000-0000-0000-0000-000000000001",
			Type:      models.CodeTypeCredits,
			Value:     "25",
			Status:    models.CodeActive,
			CreatedAt: wallettest.Start,
		})
		require.True(t, ok)
		return err
	})
	require.NoError(t, err)

	res, err := svc.Redeem(ctx, 1, code)
	require.NoError(t, err)
	assert.Equal(t, int64(25), res.Credits)
}

func TestRedeemErrors(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()

	_, err := svc.Redeem(ctx, 1, "not a code")
	require.ErrorIs(t, err, common.ErrCodeNotFound)
	_, err = svc.Redeem(ctx, 1, "NOPE-AAAA-BBBB-CCCC")
	require.ErrorIs(t, err, common.ErrCodeNotFound)

	expires := env.Clock.Now().Add(time.Hour)
	codes := generate(t, svc, GenerateRequest{
		Prefix: "X", Quantity: 2, CodeType: models.CodeTypeCredits, CodeValue: "10", ExpiresAt: &expires,
	})

	_, err = svc.SetCodeStatus(ctx, codes[0], models.CodeCancelled)
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, 1, codes[0])
	require.ErrorIs(t, err, common.ErrCodeNotActive)

	env.Clock.Advance(time.Hour)
	_, err = svc.Redeem(ctx, 1, codes[1])
	require.ErrorIs(t, err, common.ErrCodeExpired)

	assert.Equal(t, int64(0), env.Balance(t, 1).TotalAvailable)
	assert.Empty(t, env.Entries(t, 1))
}

func TestRedeemPlanCode(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	codes := generate(t, svc, GenerateRequest{Prefix: "PLAN", Quantity: 2, CodeType: models.CodeTypePlan, CodeValue: "PRO", ValidDays: 14})

	res, err := svc.Redeem(ctx, 1, codes[0])
	require.NoError(t, err)
	require.NotNil(t, res.Subscription)
	assert.Equal(t, "pro", res.Subscription.PlanCode)
	assert.Equal(t, wallettest.Start.Add(14*24*time.Hour), res.Subscription.ExpiresAt)
	assert.Equal(t, int64(500), res.Balance.PackageTokensRemaining)

	entries := env.Entries(t, 1)
	require.Len(t, entries, 1)
	meta := entries[0].Metadata.(models.PackageRenewalMetadata)
	assert.Equal(t, models.RenewalActivation, meta.Kind)
	assert.Equal(t, "redemption", meta.Source)
}

func TestRedeemPlanDowngradeKeepsCodeActive(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	env.Subscribe(t, 1, "ultra", 30)
	code := generate(t, svc, GenerateRequest{Prefix: "PLAN", Quantity: 1, CodeType: models.CodeTypePlan, CodeValue: "basic", ValidDays: 30})[0]

	_, err := svc.Redeem(ctx, 1, code)
	require.ErrorIs(t, err, common.ErrDowngradeNotAllowed)

	// Код не сгорел, его может погасить другой пользователь
	res, err := svc.Redeem(ctx, 2, code)
	require.NoError(t, err)
	assert.Equal(t, "basic", res.Subscription.PlanCode)
}

func TestConcurrentRedeemHasSingleWinner(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	code := generate(t, svc, GenerateRequest{Prefix: "RACE", Quantity: 1, CodeType: models.CodeTypeCredits, CodeValue: "100"})[0]

	const users = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []int64
		used    int
	)
	for i := int64(1); i <= users; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := svc.Redeem(ctx, userID, code)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, userID)
			case common.CodeOf(err) == common.CodeCodeAlreadyUsed:
				used++
			default:
				t.Errorf("неожиданная ошибка: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, users-1, used)

	var total int64
	for i := int64(1); i <= users; i++ {
		total += env.Balance(t, i).IndependentTokens
	}
	assert.Equal(t, int64(100), total)
}

func TestSetCodeStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	codes := generate(t, svc, GenerateRequest{Prefix: "S", Quantity: 2, CodeType: models.CodeTypeCredits, CodeValue: "10"})

	c, err := svc.SetCodeStatus(ctx, codes[0], models.CodeCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.CodeCancelled, c.Status)

	_, err = svc.SetCodeStatus(ctx, codes[0], models.CodeCancelled)
	require.NoError(t, err)

	_, err = svc.SetCodeStatus(ctx, codes[1], models.CodeActive)
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.Redeem(ctx, 1, codes[1])
	require.NoError(t, err)
	_, err = svc.SetCodeStatus(ctx, codes[1], models.CodeCancelled)
	require.ErrorIs(t, err, common.ErrCodeNotActive)

	_, err = svc.SetCodeStatus(ctx, "NOPE-AAAA", models.CodeCancelled)
	require.ErrorIs(t, err, common.ErrCodeNotFound)
}

func TestExpireSweep(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	expires := env.Clock.Now().Add(time.Hour)
	batch, err := svc.GenerateBatch(ctx, GenerateRequest{
		Prefix: "E", Quantity: 3, CodeType: models.CodeTypeCredits, CodeValue: "10", ExpiresAt: &expires,
	})
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, 1, batch.Codes[0])
	require.NoError(t, err)

	n, err := svc.ExpireSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.Clock.Advance(2 * time.Hour)
	n, err = svc.ExpireSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	codes, err := svc.ListBatch(ctx, batch.BatchID)
	require.NoError(t, err)
	statuses := map[models.CodeStatus]int{}
	for _, c := range codes {
		statuses[c.Status]++
	}
	assert.Equal(t, map[models.CodeStatus]int{models.CodeUsed: 1, models.CodeExpired: 2}, statuses)
}
