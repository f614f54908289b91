// handlers.go обрабатывает команду !тарифы.

package subscription

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
)

// Handler показывает каталог тарифов и текущую подписку.
type Handler struct {
	service *Service
	sender  common.Sender
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service, sender common.Sender) *Handler {
	return &Handler{service: service, sender: sender}
}

// HandlePlans обрабатывает !тарифы.
func (h *Handler) HandlePlans(ctx context.Context, chatID, userID int64) {
	plans, err := h.service.Plans(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения тарифов")
		h.sender.Send(ctx, chatID, "❌ "+common.PublicMessage(err))
		return
	}
	cur, err := h.service.Current(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения подписки")
		h.sender.Send(ctx, chatID, "❌ "+common.PublicMessage(err))
		return
	}

	var sb strings.Builder
	sb.WriteString("📦 Тарифы\n\n")
	for _, p := range plans {
		mark := "▫️"
		if cur != nil && cur.PlanCode == p.Code {
			mark = "✅"
		}
		fmt.Fprintf(&sb, "%s %s (%s): до %s, +%s в час, сбросов в день: %d\n",
			mark, p.Title, p.Code,
			common.FormatTokens(p.CreditCap),
			common.FormatNumber(p.RecoveryRate),
			p.ManualResetPerDay)
	}
	if cur != nil {
		fmt.Fprintf(&sb, "\nТекущий тариф действует до %s", common.FormatDateTime(cur.ExpiresAt))
	} else {
		sb.WriteString("\nАктивного тарифа нет")
	}
	h.sender.Send(ctx, chatID, sb.String())
}
