package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/features/bonus"
	"serotonyl.ru/wallet-bot/internal/features/redemption"
	"serotonyl.ru/wallet-bot/internal/features/referral"
	"serotonyl.ru/wallet-bot/internal/features/reset"
	"serotonyl.ru/wallet-bot/internal/features/subscription"
	"serotonyl.ru/wallet-bot/internal/features/usage"
	"serotonyl.ru/wallet-bot/internal/features/wallet"
	"serotonyl.ru/wallet-bot/internal/features/wallet/wallettest"
	"serotonyl.ru/wallet-bot/internal/ratelimit"
)

const (
	testSecret  = "test-secret-0123456789"
	testWebhook = "hook-secret"
)

type testAPI struct {
	r   *gin.Engine
	env *wallettest.Env
}

func setupRouter(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := wallettest.New(t)
	env.Cfg.JWTSecret = testSecret
	env.Cfg.WebhookSecret = testWebhook

	ref := referral.NewService(env.Wallet, env.Cfg)
	r := NewRouter(Deps{
		Cfg:           env.Cfg,
		Wallet:        env.Wallet,
		Usage:         usage.NewService(env.Wallet),
		Reset:         reset.NewService(env.Wallet),
		Redemption:    redemption.NewService(env.Wallet, env.Cfg),
		Referral:      ref,
		Bonus:         bonus.NewService(env.Wallet, env.Cfg),
		Subscriptions: subscription.NewService(env.Wallet, ref, env.Cfg),
		RedeemLimiter: ratelimit.NewMemory(3, time.Minute),
	})
	return &testAPI{r: r, env: env}
}

func token(t *testing.T, userID int64, admin bool) string {
	t.Helper()
	tok, err := IssueToken(testSecret, userID, admin, time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func (a *testAPI) hook(t *testing.T, path, secret string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Secret", secret)
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestAuthIsRequired(t *testing.T) {
	a := setupRouter(t)

	w := a.do(t, http.MethodGet, "/api/v1/wallet/balance", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, common.CodeUnauthorized, decode[ErrorResponse](t, w).Code)

	forged, err := IssueToken("another-secret-456789", 1, true, time.Hour, time.Now())
	require.NoError(t, err)
	w = a.do(t, http.MethodGet, "/api/v1/wallet/balance", forged, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := IssueToken(testSecret, 1, false, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	w = a.do(t, http.MethodGet, "/api/v1/wallet/balance", expired, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/admin/credits/adjust", token(t, 1, false), gin.H{"user_id": 2, "action": "add", "amount": 5})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestUseAndBalance(t *testing.T) {
	a := setupRouter(t)
	a.env.Subscribe(t, 1, "pro", 30)
	a.env.Fund(t, 1, 500, 1000)
	tok := token(t, 1, false)

	w := a.do(t, http.MethodPost, "/api/v1/wallet/use", tok, gin.H{"amount": 1200, "service": "chat", "request_id": "r-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[useResponse](t, w)
	assert.Equal(t, int64(300), res.Balance.TotalAvailable)
	assert.Equal(t, int64(1200), res.Entry.Amount)

	w = a.do(t, http.MethodPost, "/api/v1/wallet/use", tok, gin.H{"amount": 2000, "service": "chat"})
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, common.CodeInsufficientCredits, decode[ErrorResponse](t, w).Code)

	w = a.do(t, http.MethodPost, "/api/v1/wallet/use", tok, gin.H{"amount": -1, "service": "chat"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/wallet/balance", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	b := decode[wallet.Balance](t, w)
	assert.Equal(t, int64(0), b.PackageTokensRemaining)
	assert.Equal(t, int64(300), b.IndependentTokens)
	assert.Equal(t, 1, b.DailyUsageCount)
	assert.Equal(t, "pro", b.PlanCode)

	w = a.do(t, http.MethodGet, "/api/v1/wallet/ledger?limit=1", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	ledger := decode[struct {
		Entries []json.RawMessage `json:"entries"`
	}](t, w)
	assert.Len(t, ledger.Entries, 1)
}

func TestManualResetEndpoint(t *testing.T) {
	a := setupRouter(t)
	tok := token(t, 1, false)

	w := a.do(t, http.MethodPost, "/api/v1/wallet/manual-reset", tok, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, common.CodeNoActivePackage, decode[ErrorResponse](t, w).Code)

	a.env.Subscribe(t, 1, "basic", 30)
	w = a.do(t, http.MethodPost, "/api/v1/wallet/manual-reset", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[manualResetResponse](t, w)
	assert.Equal(t, int64(100), res.Balance.PackageTokensRemaining)

	w = a.do(t, http.MethodPost, "/api/v1/wallet/manual-reset", tok, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, common.CodeLimitReached, decode[ErrorResponse](t, w).Code)
}

func TestAdminCodesAndRedeem(t *testing.T) {
	a := setupRouter(t)
	adminTok := token(t, 99, true)

	w := a.do(t, http.MethodPost, "/api/v1/admin/codes", adminTok, gin.H{
		"prefix": "promo", "quantity": 2, "code_type": "credits", "code_value": "250",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	batch := decode[redemption.Batch](t, w)
	require.Len(t, batch.Codes, 2)

	w = a.do(t, http.MethodGet, "/api/v1/admin/codes/batch/"+batch.BatchID, adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	userTok := token(t, 1, false)
	w = a.do(t, http.MethodPost, "/api/v1/redeem", userTok, gin.H{"code": batch.Codes[0]})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[redemption.Result](t, w)
	assert.Equal(t, int64(250), res.Balance.IndependentTokens)

	w = a.do(t, http.MethodPost, "/api/v1/redeem", userTok, gin.H{"code": batch.Codes[0]})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, common.CodeCodeAlreadyUsed, decode[ErrorResponse](t, w).Code)

	w = a.do(t, http.MethodPatch, "/api/v1/admin/codes/"+batch.Codes[1], adminTok, gin.H{"status": "cancelled"})
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodPost, "/api/v1/redeem", userTok, gin.H{"code": batch.Codes[1]})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, common.CodeCodeNotActive, decode[ErrorResponse](t, w).Code)

	// Лимит три попытки в минуту
	w = a.do(t, http.MethodPost, "/api/v1/redeem", userTok, gin.H{"code": "NOPE-AAAA"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAdminAdjustEndpoint(t *testing.T) {
	a := setupRouter(t)
	adminTok := token(t, 99, true)

	w := a.do(t, http.MethodPost, "/api/v1/admin/credits/adjust", adminTok, gin.H{"user_id": 5, "action": "add", "amount": 40, "comment": "тест"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/v1/admin/credits/adjust", adminTok, gin.H{"user_id": 5, "action": "subtract", "amount": 41})
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, common.CodeInsufficientBalance, decode[ErrorResponse](t, w).Code)

	w = a.do(t, http.MethodPost, "/api/v1/admin/credits/adjust", adminTok, gin.H{"user_id": 5, "action": "set", "amount": 7})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), a.env.Balance(t, 5).IndependentTokens)
}

func TestPaymentHookAndReferral(t *testing.T) {
	a := setupRouter(t)

	w := a.do(t, http.MethodGet, "/api/v1/referral/code", token(t, 1, false), nil)
	require.Equal(t, http.StatusOK, w.Code)
	code := decode[struct {
		Code string `json:"code"`
	}](t, w).Code

	w = a.do(t, http.MethodPost, "/api/v1/referral/attach", token(t, 2, false), gin.H{"code": code})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[struct {
		Attached bool `json:"attached"`
	}](t, w).Attached)

	evt := gin.H{"order_no": "ORD-7", "amount": 99900, "payer_id": 2, "plan_code": "pro"}
	w = a.hook(t, "/api/v1/hooks/payment-settled", "wrong", evt)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.hook(t, "/api/v1/hooks/payment-settled", testWebhook, evt)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[subscription.PaymentOutcome](t, w)
	assert.True(t, out.ReferralRewarded)
	assert.False(t, out.Duplicate)

	w = a.hook(t, "/api/v1/hooks/payment-settled", testWebhook, evt)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[subscription.PaymentOutcome](t, w).Duplicate)

	assert.Equal(t, int64(200), a.env.Balance(t, 1).IndependentTokens)
	b := a.env.Balance(t, 2)
	assert.Equal(t, int64(100), b.IndependentTokens)
	assert.Equal(t, int64(500), b.PackageTokensRemaining)
}

func TestUserRegisteredHook(t *testing.T) {
	a := setupRouter(t)
	body := gin.H{"user_id": 3, "source": "web", "provider": "google"}

	w := a.hook(t, "/api/v1/hooks/user-registered", testWebhook, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[struct {
		Granted bool `json:"granted"`
	}](t, w).Granted)

	w = a.hook(t, "/api/v1/hooks/user-registered", testWebhook, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[struct {
		Granted bool `json:"granted"`
	}](t, w).Granted)
	assert.Equal(t, int64(100), a.env.Balance(t, 3).IndependentTokens)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, StatusOf(common.CodeDailyLimitExceeded))
	assert.Equal(t, http.StatusGone, StatusOf(common.CodeCodeExpired))
	assert.Equal(t, http.StatusInternalServerError, StatusOf("SOMETHING_ELSE"))
}
