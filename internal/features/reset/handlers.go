// handlers.go обрабатывает команду !сброс.

package reset

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
)

// Handler обрабатывает команду ручного сброса.
type Handler struct {
	service *Service
	sender  common.Sender
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service, sender common.Sender) *Handler {
	return &Handler{service: service, sender: sender}
}

// HandleReset обрабатывает !сброс.
func (h *Handler) HandleReset(ctx context.Context, chatID, userID int64) {
	res, err := h.service.ManualResetCredits(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrNoActivePackage):
		h.sender.Send(ctx, chatID, "❌ Сброс доступен только с активным тарифом")
		return
	case errors.Is(err, common.ErrLimitReached):
		h.sender.Send(ctx, chatID, "⏳ Сбросы на сегодня закончились. Следующий — после полуночи UTC")
		return
	default:
		log.WithError(err).WithField("user_id", userID).Error("Ошибка ручного сброса")
		h.sender.Send(ctx, chatID, "❌ "+common.PublicMessage(err))
		return
	}

	h.sender.Send(ctx, chatID, fmt.Sprintf("🔄 Пакетные токены восстановлены: %s\nСбросов осталось сегодня: %d\nКвота обновится: %s",
		common.FormatNumber(res.Balance.PackageTokensRemaining),
		res.ResetsRemainingToday,
		common.FormatDateTime(res.NextAvailableAt)))
}
