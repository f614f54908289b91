package members

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/features/bonus"
	"serotonyl.ru/wallet-bot/internal/features/referral"
	"serotonyl.ru/wallet-bot/internal/features/wallet/wallettest"
	"serotonyl.ru/wallet-bot/internal/models"
)

// recorder запоминает отправленные сообщения.
type recorder struct {
	mu   sync.Mutex
	sent []string
}

func (r *recorder) Send(_ context.Context, _ int64, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
}

func newTestService(t *testing.T) (*Service, *wallettest.Env) {
	env := wallettest.New(t)
	return NewService(env.Wallet, bonus.NewService(env.Wallet, env.Cfg)), env
}

func TestRegisterGrantsBonusOnce(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()

	created, granted, err := svc.Register(ctx, &models.Member{UserID: 1, Username: "@Alice", FirstName: "Алиса"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, granted)

	created, granted, err = svc.Register(ctx, &models.Member{UserID: 1, Username: "alice_new"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.False(t, granted)

	assert.Equal(t, int64(100), env.Balance(t, 1).IndependentTokens)
	env.RequireLedgerMatches(t, 1)

	m, err := svc.GetByUsername(ctx, "@ALICE_NEW")
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.UserID)
	assert.Equal(t, wallettest.Start, m.CreatedAt)
}

func TestGetUnknownMember(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), 42)
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = svc.GetByUsername(context.Background(), "nobody")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestStartWithInviteCode(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	ref := referral.NewService(env.Wallet, env.Cfg)
	rec := &recorder{}
	h := NewHandler(svc, referral.NewHandler(ref, rec, "wallet_bot"), rec)

	ic, err := ref.EnsureUserInviteCode(ctx, 1)
	require.NoError(t, err)

	h.HandleStart(ctx, 2, &models.Member{UserID: 2, FirstName: "Боб"}, ic.Code)
	inviter, err := ref.Inviter(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inviter)
	require.Len(t, rec.sent, 2)
	assert.Contains(t, rec.sent[0], "Боб")

	// Неизвестный код при /start не шумит
	h.HandleStart(ctx, 3, &models.Member{UserID: 3}, "UNKNOWN1")
	assert.Len(t, rec.sent, 3)
}
