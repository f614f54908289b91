package wallet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/models"
)

func TestPlanSpendDrawsPackageFirst(t *testing.T) {
	d, err := PlanSpend(1000, 500, 1200)
	require.NoError(t, err)
	assert.Equal(t, Deltas{Package: -1000, Independent: -200}, d)

	pkg, ind, err := Transition(1000, 500, d, ModeStrict)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pkg)
	assert.Equal(t, int64(300), ind)

	d, err = PlanSpend(1000, 500, 300)
	require.NoError(t, err)
	assert.Equal(t, Deltas{Package: -300}, d)
}

func TestPlanSpendRejects(t *testing.T) {
	_, err := PlanSpend(1000, 500, 2000)
	assert.ErrorIs(t, err, common.ErrInsufficientCredits)

	_, err = PlanSpend(1000, 500, 0)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = PlanSpend(1000, 500, -5)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestTransitionModes(t *testing.T) {
	pkg, ind, err := Transition(10, 5, Deltas{Independent: -6}, ModeStrict)
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)
	assert.Equal(t, int64(10), pkg)
	assert.Equal(t, int64(5), ind)

	pkg, ind, err = Transition(10, 5, Deltas{Independent: -6}, ModeClamp)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pkg)
	assert.Equal(t, int64(0), ind)
}

func TestBucketOf(t *testing.T) {
	assert.Equal(t, models.BucketMixed, bucketOf(Deltas{Package: -1, Independent: -1}, models.ReasonUsage))
	assert.Equal(t, models.BucketPackage, bucketOf(Deltas{Package: -1}, models.ReasonUsage))
	assert.Equal(t, models.BucketIndependent, bucketOf(Deltas{Independent: 3}, models.ReasonRedemption))
	assert.Equal(t, models.BucketPackage, bucketOf(Deltas{}, models.ReasonManualReset))
	assert.Equal(t, models.BucketIndependent, bucketOf(Deltas{}, models.ReasonAdminAdjust))
}

func TestRecoveryKeepsFractionalHours(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := &models.Wallet{PackageTokensRemaining: 0, LastRecoveryAt: start}
	lim := Limits{PlanCode: "pro", CreditCap: 500, RecoveryRate: 50}

	credit, hours := RecoveryCredit(w, lim, start.Add(2*time.Hour+40*time.Minute))
	assert.Equal(t, int64(100), credit)
	assert.Equal(t, int64(2), hours)

	credit, hours = RecoveryCredit(w, lim, start.Add(59*time.Minute))
	assert.Zero(t, credit)
	assert.Zero(t, hours)
}

func TestRecoveryCappedAndWithoutPlan(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lim := Limits{PlanCode: "basic", CreditCap: 100, RecoveryRate: 10}

	credit, hours := RecoveryCredit(&models.Wallet{PackageTokensRemaining: 95, LastRecoveryAt: start}, lim, start.Add(48*time.Hour))
	assert.Equal(t, int64(5), credit)
	assert.Equal(t, int64(48), hours)

	// На лимите начислять нечего, но часы засчитываются
	credit, hours = RecoveryCredit(&models.Wallet{PackageTokensRemaining: 100, LastRecoveryAt: start}, lim, start.Add(10*time.Hour))
	assert.Zero(t, credit)
	assert.Equal(t, int64(10), hours)

	// Выше лимита тоже ничего не начисляется
	credit, _ = RecoveryCredit(&models.Wallet{PackageTokensRemaining: 2000, LastRecoveryAt: start}, lim, start.Add(10*time.Hour))
	assert.Zero(t, credit)

	credit, hours = RecoveryCredit(&models.Wallet{LastRecoveryAt: start}, Limits{DailyUsageLimit: 10}, start.Add(72*time.Hour))
	assert.Zero(t, credit)
	assert.Zero(t, hours)
}

func TestEffectiveCountersResetAtUTCMidnight(t *testing.T) {
	day := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	w := &models.Wallet{DailyUsageCount: 7, DailyUsageResetAt: day, ManualResetCount: 1, ManualResetAt: day}

	assert.Equal(t, 7, EffectiveDailyUsage(w, day.Add(59*time.Minute)))
	assert.Equal(t, 0, EffectiveDailyUsage(w, day.Add(time.Hour)))
	assert.Equal(t, 1, EffectiveManualResets(w, day.Add(30*time.Minute)))
	assert.Equal(t, 0, EffectiveManualResets(w, day.Add(2*time.Hour)))

	lim := Limits{PlanCode: "basic", ManualResetPerDay: 1}
	assert.Equal(t, 0, ResetsRemaining(w, lim, day))
	assert.Equal(t, 1, ResetsRemaining(w, lim, day.Add(time.Hour)))
	assert.Equal(t, 0, ResetsRemaining(w, Limits{}, day.Add(time.Hour)))
}
