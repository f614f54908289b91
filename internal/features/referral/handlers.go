// handlers.go обрабатывает команды:
// !пригласить (свой код и ссылка), !мойкод <код> (смена кода),
// !пригласил <код> и /start <код> (привязка к пригласившему).

package referral

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
)

// Handler обрабатывает реферальные команды.
type Handler struct {
	service     *Service
	sender      common.Sender
	botUsername string
}

// NewHandler создаёт обработчик. botUsername нужен для ссылки-приглашения.
func NewHandler(service *Service, sender common.Sender, botUsername string) *Handler {
	return &Handler{service: service, sender: sender, botUsername: botUsername}
}

// HandleInvite показывает код приглашения и ссылку.
func (h *Handler) HandleInvite(ctx context.Context, chatID, userID int64) {
	ic, err := h.service.EnsureUserInviteCode(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка выдачи кода приглашения")
		h.sender.Send(ctx, chatID, "❌ Не удалось получить код приглашения")
		return
	}
	text := fmt.Sprintf("🎁 Твой код приглашения: %s\nДрузья получат %s, а ты — %s после их первой оплаты.",
		ic.Code, common.FormatTokens(h.service.inviteeReward), common.FormatTokens(h.service.inviterReward))
	if h.botUsername != "" {
		text += fmt.Sprintf("\n🔗 https://t.me/%s?start=%s", h.botUsername, ic.Code)
	}
	h.sender.Send(ctx, chatID, text)
}

// HandleChangeCode обрабатывает !мойкод НОВЫЙКОД.
func (h *Handler) HandleChangeCode(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 1 {
		h.sender.Send(ctx, chatID, "❌ Формат: !мойкод НОВЫЙКОД")
		return
	}
	ic, err := h.service.ChangeInviteCode(ctx, userID, args[0])
	switch {
	case err == nil:
		h.sender.Send(ctx, chatID, "✅ Новый код приглашения: "+ic.Code)
	case errors.Is(err, common.ErrLimitReached):
		h.sender.Send(ctx, chatID, "⏳ Код можно менять не чаще раза в 30 дней")
	default:
		if common.CodeOf(err) == common.CodeInternal {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка смены кода приглашения")
		}
		h.sender.Send(ctx, chatID, "❌ "+common.PublicMessage(err))
	}
}

// HandleAttach привязывает пользователя к владельцу кода.
// silent: не отвечать, если привязка не состоялась (для /start).
func (h *Handler) HandleAttach(ctx context.Context, chatID, userID int64, code string, silent bool) {
	attached, err := h.service.AttachReferralByCode(ctx, userID, code)
	switch {
	case err == nil && attached:
		h.sender.Send(ctx, chatID, "🤝 Приглашение принято! Бонус придёт после первой оплаты.")
	case err == nil:
		if !silent {
			h.sender.Send(ctx, chatID, "ℹ️ Приглашение уже привязано или код твой собственный")
		}
	case errors.Is(err, common.ErrNotFound):
		if !silent {
			h.sender.Send(ctx, chatID, "❌ Код приглашения не найден")
		}
	default:
		log.WithError(err).WithField("user_id", userID).Error("Ошибка привязки приглашения")
		if !silent {
			h.sender.Send(ctx, chatID, "❌ "+common.PublicMessage(err))
		}
	}
}
