// Package httpapi отдаёт JSON API кошелька для остальных частей веб-приложения:
// сервис идентификации выдаёт JWT, платёжный шлюз шлёт вебхуки об оплате,
// админка вызывает административные операции.
package httpapi

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/config"
	"serotonyl.ru/wallet-bot/internal/features/bonus"
	"serotonyl.ru/wallet-bot/internal/features/redemption"
	"serotonyl.ru/wallet-bot/internal/features/referral"
	"serotonyl.ru/wallet-bot/internal/features/reset"
	"serotonyl.ru/wallet-bot/internal/features/subscription"
	"serotonyl.ru/wallet-bot/internal/features/usage"
	"serotonyl.ru/wallet-bot/internal/features/wallet"
	"serotonyl.ru/wallet-bot/internal/ratelimit"
)

// Deps: сервисы, которые обслуживает API.
type Deps struct {
	Cfg           *config.Config
	Wallet        *wallet.Service
	Usage         *usage.Service
	Reset         *reset.Service
	Redemption    *redemption.Service
	Referral      *referral.Service
	Bonus         *bonus.Service
	Subscriptions *subscription.Service
	// RedeemLimiter ограничивает попытки погашения кодов на пользователя.
	RedeemLimiter ratelimit.Limiter
}

type api struct {
	Deps
}

// NewRouter собирает маршруты.
func NewRouter(d Deps) *gin.Engine {
	if d.Cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	a := &api{Deps: d}

	r := gin.New()
	r.Use(requestLogger(), recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")

	user := v1.Group("", authRequired(d.Cfg.JWTSecret))
	user.GET("/wallet/balance", a.balance)
	user.GET("/wallet/ledger", a.ledger)
	user.POST("/wallet/use", a.use)
	user.POST("/wallet/manual-reset", a.manualReset)
	user.POST("/redeem", a.redeem)
	user.GET("/referral/code", a.inviteCode)
	user.PUT("/referral/code", a.changeInviteCode)
	user.POST("/referral/attach", a.attachReferral)
	user.GET("/plans", a.plans)

	admin := user.Group("/admin", requireAdmin())
	admin.POST("/codes", a.generateCodes)
	admin.GET("/codes/batch/:batch_id", a.listBatch)
	admin.PATCH("/codes/:code", a.setCodeStatus)
	admin.POST("/credits/adjust", a.adjustCredits)

	hooks := v1.Group("/hooks", webhookSecret(d.Cfg.WebhookSecret))
	hooks.POST("/payment-settled", a.paymentSettled)
	hooks.POST("/user-registered", a.userRegistered)

	return r
}

// requestLogger пишет в logrus каждый запрос.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"user_id":  c.GetInt64(ctxUserID),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("HTTP-запрос завершился ошибкой")
			return
		}
		entry.Debug("HTTP-запрос")
	}
}

func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, r any) {
		log.WithFields(log.Fields{
			"component": "panic_recovery",
			"panic":     fmt.Sprintf("%v", r),
			"stack":     string(debug.Stack()),
		}).Error("ПАНИКА в HTTP-обработчике — восстановлено")
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Code:    common.CodeInternal,
			Message: common.PublicMessage(nil),
		})
	})
}
