// handlers.go обрабатывает команду !списать <сумма> [сервис].

package usage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
)

// DefaultService: сервис, если в команде он не указан.
const DefaultService = "chat"

// Handler обрабатывает команды списания.
type Handler struct {
	service *Service
	sender  common.Sender
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service, sender common.Sender) *Handler {
	return &Handler{service: service, sender: sender}
}

// HandleUse обрабатывает !списать 10 или !списать 10 images.
func (h *Handler) HandleUse(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 1 {
		h.sender.Send(ctx, chatID, "❌ Формат: !списать сумма [сервис]")
		return
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || amount <= 0 {
		h.sender.Send(ctx, chatID, "❌ Сумма должна быть положительным числом")
		return
	}
	service := DefaultService
	if len(args) > 1 {
		service = strings.ToLower(args[1])
	}

	res, err := h.service.UseCredits(ctx, userID, Request{Amount: amount, Service: service})
	if err != nil {
		if common.CodeOf(err) == common.CodeInternal {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка списания")
		}
		h.sender.Send(ctx, chatID, "❌ "+common.PublicMessage(err))
		return
	}

	h.sender.Send(ctx, chatID, fmt.Sprintf("✅ Списано %s (%s)\n💰 Осталось: %s\n📊 Использований сегодня: %d / %d",
		common.FormatTokens(amount), service,
		common.FormatTokens(res.Balance.TotalAvailable),
		res.Balance.DailyUsageCount, res.Balance.DailyUsageLimit))
}
