package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
)

// ErrorResponse: тело ответа с ошибкой.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var statusByCode = map[string]int{
	common.CodeValidation:          http.StatusBadRequest,
	common.CodeNotFound:            http.StatusNotFound,
	common.CodeConflict:            http.StatusConflict,
	common.CodeInsufficientBalance: http.StatusPaymentRequired,
	common.CodeInsufficientCredits: http.StatusPaymentRequired,
	common.CodeLimitReached:        http.StatusTooManyRequests,
	common.CodeDailyLimitExceeded:  http.StatusTooManyRequests,
	common.CodeDowngradeNotAllowed: http.StatusConflict,
	common.CodeNoActivePackage:     http.StatusForbidden,
	common.CodeUnauthorized:        http.StatusUnauthorized,
	common.CodeForbidden:           http.StatusForbidden,
	common.CodeCodeNotFound:        http.StatusNotFound,
	common.CodeCodeNotActive:       http.StatusConflict,
	common.CodeCodeAlreadyUsed:     http.StatusConflict,
	common.CodeCodeExpired:         http.StatusGone,
}

// StatusOf: HTTP-статус для машинного кода ошибки.
func StatusOf(code string) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	code := common.CodeOf(err)
	if code == common.CodeInternal {
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("Внутренняя ошибка HTTP API")
	}
	c.AbortWithStatusJSON(StatusOf(code), ErrorResponse{Code: code, Message: common.PublicMessage(err)})
}

func badRequest(c *gin.Context, err error) {
	abortWithError(c, common.Validation("некорректное тело запроса: %v", err))
}
