package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/features/redemption"
	"serotonyl.ru/wallet-bot/internal/features/subscription"
	"serotonyl.ru/wallet-bot/internal/features/usage"
	"serotonyl.ru/wallet-bot/internal/features/wallet"
	"serotonyl.ru/wallet-bot/internal/models"
)

// --- Кошелёк ---

func (a *api) balance(c *gin.Context) {
	b, err := a.Wallet.GetBalance(c.Request.Context(), userID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *api) ledger(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := a.Wallet.History(c.Request.Context(), userID(c), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type useRequest struct {
	Amount    int64  `json:"amount"`
	Service   string `json:"service"`
	RequestID string `json:"request_id"`
	Note      string `json:"note"`
}

type useResponse struct {
	Balance *wallet.Balance     `json:"balance"`
	Entry   *models.LedgerEntry `json:"entry"`
}

func (a *api) use(c *gin.Context) {
	var req useRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := a.Usage.UseCredits(c.Request.Context(), userID(c), usage.Request(req))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, useResponse{Balance: res.Balance, Entry: res.Entry})
}

type manualResetResponse struct {
	Balance              *wallet.Balance `json:"balance"`
	ResetsRemainingToday int             `json:"resets_remaining_today"`
	NextAvailableAt      time.Time       `json:"next_available_at"`
}

func (a *api) manualReset(c *gin.Context) {
	res, err := a.Reset.ManualResetCredits(c.Request.Context(), userID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, manualResetResponse{
		Balance:              res.Balance,
		ResetsRemainingToday: res.ResetsRemainingToday,
		NextAvailableAt:      res.NextAvailableAt,
	})
}

// --- Коды погашения ---

type codeRequest struct {
	Code string `json:"code" binding:"required"`
}

func (a *api) redeem(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	uid := userID(c)
	if a.RedeemLimiter != nil {
		ok, err := a.RedeemLimiter.Allow(c.Request.Context(), "redeem:"+strconv.FormatInt(uid, 10))
		if err != nil {
			log.WithError(err).Warn("Лимитер погашений недоступен")
		} else if !ok {
			abortWithError(c, common.ErrLimitReached)
			return
		}
	}
	res, err := a.Redemption.Redeem(c.Request.Context(), uid, req.Code)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *api) generateCodes(c *gin.Context) {
	var req redemption.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.CreatedBy = userID(c)
	batch, err := a.Redemption.GenerateBatch(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

func (a *api) listBatch(c *gin.Context) {
	codes, err := a.Redemption.ListBatch(c.Request.Context(), c.Param("batch_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"codes": codes})
}

type codeStatusRequest struct {
	Status models.CodeStatus `json:"status" binding:"required"`
}

func (a *api) setCodeStatus(c *gin.Context) {
	var req codeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	code, err := a.Redemption.SetCodeStatus(c.Request.Context(), c.Param("code"), req.Status)
	if err != nil {
		abortWithError(c, err)
		return
	}
	log.WithFields(log.Fields{
		"admin_id": userID(c),
		"code":     code.Code,
		"status":   code.Status,
	}).Info("Статус кода изменён через API")
	c.JSON(http.StatusOK, code)
}

type adjustRequest struct {
	UserID  int64  `json:"user_id" binding:"required"`
	Action  string `json:"action" binding:"required"`
	Amount  int64  `json:"amount"`
	Comment string `json:"comment"`
}

func (a *api) adjustCredits(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := a.Wallet.AdminAdjust(c.Request.Context(), wallet.AdjustRequest{
		AdminID: userID(c),
		UserID:  req.UserID,
		Action:  req.Action,
		Amount:  req.Amount,
		Comment: req.Comment,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": out.Balance(), "entry": out.LastEntry()})
}

// --- Приглашения ---

func (a *api) inviteCode(c *gin.Context) {
	ic, err := a.Referral.EnsureUserInviteCode(c.Request.Context(), userID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ic)
}

func (a *api) changeInviteCode(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ic, err := a.Referral.ChangeInviteCode(c.Request.Context(), userID(c), req.Code)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ic)
}

func (a *api) attachReferral(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	attached, err := a.Referral.AttachReferralByCode(c.Request.Context(), userID(c), req.Code)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attached": attached})
}

// --- Тарифы ---

func (a *api) plans(c *gin.Context) {
	plans, err := a.Subscriptions.Plans(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	sub, err := a.Subscriptions.Current(c.Request.Context(), userID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans, "current": sub})
}

// --- Вебхуки ---

func (a *api) paymentSettled(c *gin.Context) {
	var evt subscription.PaymentEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		badRequest(c, err)
		return
	}
	res, err := a.Subscriptions.HandlePaymentSettled(c.Request.Context(), evt)
	if err != nil {
		// Шлюз повторит доставку, повтор безопасен
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type userRegisteredRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	Source   string `json:"source" binding:"required"`
	Provider string `json:"provider"`
}

func (a *api) userRegistered(c *gin.Context) {
	var req userRegisteredRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	granted, err := a.Bonus.GrantNewUserBonus(c.Request.Context(), req.UserID, req.Source, req.Provider)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"granted": granted})
}
