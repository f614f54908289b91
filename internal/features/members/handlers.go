// handlers.go обрабатывает /start: регистрация,
// приветственный бонус и привязка к пригласившему по коду из ссылки.

package members

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/features/referral"
	"serotonyl.ru/wallet-bot/internal/models"
)

// Handler обрабатывает регистрацию пользователей.
type Handler struct {
	service  *Service
	referral *referral.Handler
	sender   common.Sender
}

// NewHandler создаёт обработчик. referral может быть nil.
func NewHandler(service *Service, ref *referral.Handler, sender common.Sender) *Handler {
	return &Handler{service: service, referral: ref, sender: sender}
}

// HandleStart обрабатывает /start и /start КОД.
func (h *Handler) HandleStart(ctx context.Context, chatID int64, m *models.Member, payload string) {
	created, granted, err := h.service.Register(ctx, m)
	if err != nil {
		log.WithError(err).WithField("user_id", m.UserID).Error("Ошибка регистрации участника")
		h.sender.Send(ctx, chatID, "❌ "+common.PublicMessage(err))
		return
	}

	greeting := "👋 С возвращением!"
	if created {
		greeting = fmt.Sprintf("👋 Привет, %s!", m.DisplayName())
	}
	if granted {
		greeting += "\n🎁 Приветственный бонус уже на балансе. Проверить: /баланс"
	}
	h.sender.Send(ctx, chatID, greeting)

	if code := strings.TrimSpace(payload); code != "" && h.referral != nil {
		h.referral.HandleAttach(ctx, chatID, m.UserID, code, true)
	}
}
