// Package wallettest собирает кошелёк поверх хранилища в памяти
// с управляемыми часами. Только для тестов.
package wallettest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/wallet-bot/internal/config"
	"serotonyl.ru/wallet-bot/internal/db"
	"serotonyl.ru/wallet-bot/internal/db/memory"
	"serotonyl.ru/wallet-bot/internal/features/wallet"
	"serotonyl.ru/wallet-bot/internal/models"
)

// Start: момент, с которого идут часы в тестах.
var Start = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

// Clock: часы, которые двигаются только вручную.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Env: окружение теста.
type Env struct {
	Cfg    *config.Config
	Store  *memory.Store
	Wallet *wallet.Service
	Clock  *Clock
}

// New создаёт окружение с конфигурацией по умолчанию.
func New(t *testing.T) *Env {
	t.Helper()
	cfg := config.Default()
	cfg.WalletDefaultDailyLimit = 1_000_000
	cfg.WalletConflictRetries = 3
	cfg.WalletHistoryLimit = 20
	cfg.WalletNewUserBonus = 100
	cfg.ReferralInviterReward = 200
	cfg.ReferralInviteeReward = 100
	cfg.ReferralCodeChangeInterval = 30 * 24 * time.Hour
	cfg.RedemptionSegments = 3
	cfg.RedemptionMaxBatch = 1000
	cfg.PlanDefaultDays = 30

	store := memory.New()
	clock := &Clock{now: Start}
	svc := wallet.NewService(store, cfg)
	svc.SetClock(clock.Now)
	return &Env{Cfg: cfg, Store: store, Wallet: svc, Clock: clock}
}

// Subscribe выдаёт пользователю тариф напрямую, без пополнения.
func (e *Env) Subscribe(t *testing.T, userID int64, planCode string, days int) {
	t.Helper()
	now := e.Clock.Now()
	err := e.Store.InTx(context.Background(), func(ctx context.Context, tx db.Tx) error {
		return tx.SaveSubscription(ctx, &models.Subscription{
			UserID:    userID,
			PlanCode:  planCode,
			Status:    models.SubscriptionActive,
			StartedAt: now,
			ExpiresAt: now.Add(time.Duration(days) * 24 * time.Hour),
			Source:    "admin",
			UpdatedAt: now,
		})
	})
	require.NoError(t, err)
}

// Fund задаёт корзины кошелька через журнал.
func (e *Env) Fund(t *testing.T, userID, pkg, ind int64) {
	t.Helper()
	_, err := e.Wallet.Update(context.Background(), userID, func(op *wallet.Op) error {
		_, err := op.Apply(wallet.Deltas{
			Package:     pkg - op.Wallet.PackageTokensRemaining,
			Independent: ind - op.Wallet.IndependentTokens,
		}, wallet.ModeStrict, models.AdminAdjustMetadata{Action: "set", Comment: "test"})
		return err
	})
	require.NoError(t, err)
}

// Balance возвращает текущий баланс.
func (e *Env) Balance(t *testing.T, userID int64) *wallet.Balance {
	t.Helper()
	b, err := e.Wallet.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

// Entries возвращает весь журнал пользователя от новых к старым.
func (e *Env) Entries(t *testing.T, userID int64) []*models.LedgerEntry {
	t.Helper()
	var out []*models.LedgerEntry
	err := e.Store.InTx(context.Background(), func(ctx context.Context, tx db.Tx) error {
		var err error
		out, err = tx.ListEntries(ctx, userID, 0)
		return err
	})
	require.NoError(t, err)
	return out
}

// RequireLedgerMatches проверяет, что журнал воспроизводит кошелёк.
func (e *Env) RequireLedgerMatches(t *testing.T, userID int64) {
	t.Helper()
	b := e.Balance(t, userID)
	pkg, ind, err := e.Wallet.Replay(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, b.PackageTokensRemaining, pkg, "пакетные токены расходятся с журналом")
	require.Equal(t, b.IndependentTokens, ind, "независимые токены расходятся с журналом")
}
