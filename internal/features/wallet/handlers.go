// handlers.go обрабатывает команды:
// !баланс (баланс и лимиты), !история (последние записи журнала).

package wallet

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/models"
)

// Handler обрабатывает команды кошелька.
type Handler struct {
	service *Service
	sender  common.Sender
}

// NewHandler создаёт обработчик команд кошелька.
func NewHandler(service *Service, sender common.Sender) *Handler {
	return &Handler{service: service, sender: sender}
}

// HandleBalance обрабатывает команду !баланс.
//
// Формат ответа:
//
//	💰 Баланс: 1 250 токенов
//	📦 Пакетные: 250 / 500 (+50 в час)
//	💎 Независимые: 1 000
func (h *Handler) HandleBalance(ctx context.Context, chatID, userID int64) {
	b, err := h.service.GetBalance(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения баланса")
		h.sender.Send(ctx, chatID, "❌ Ошибка получения баланса")
		return
	}
	h.sender.Send(ctx, chatID, FormatBalance(b))
}

// FormatBalance рендерит баланс для сообщения.
func FormatBalance(b *Balance) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 Баланс: %s\n", common.FormatTokens(b.TotalAvailable))
	if b.PlanCode != "" {
		fmt.Fprintf(&sb, "📦 Пакетные: %s / %s (+%d в час)\n",
			common.FormatNumber(b.PackageTokensRemaining), common.FormatNumber(b.CreditCap), b.RecoveryRate)
	} else {
		fmt.Fprintf(&sb, "📦 Пакетные: %s (нет тарифа)\n", common.FormatNumber(b.PackageTokensRemaining))
	}
	fmt.Fprintf(&sb, "💎 Независимые: %s\n", common.FormatNumber(b.IndependentTokens))
	fmt.Fprintf(&sb, "📊 Использований сегодня: %d / %d\n", b.DailyUsageCount, b.DailyUsageLimit)
	if b.PlanCode != "" {
		fmt.Fprintf(&sb, "🔄 Сбросов осталось: %d\n", b.ResetsRemainingToday)
	}
	fmt.Fprintf(&sb, "⏰ Счётчики обнулятся: %s", common.FormatDateTime(b.NextResetAtUTC))
	return sb.String()
}

// HandleHistory обрабатывает команду !история.
func (h *Handler) HandleHistory(ctx context.Context, chatID, userID int64) {
	entries, err := h.service.History(ctx, userID, 0)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения истории")
		h.sender.Send(ctx, chatID, "❌ Ошибка получения истории")
		return
	}
	if len(entries) == 0 {
		h.sender.Send(ctx, chatID, "📭 Операций пока нет")
		return
	}

	var sb strings.Builder
	sb.WriteString("📜 Последние операции:\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "\n%s %s — %s",
			common.FormatDateTime(e.CreatedAt), common.FormatTokensAmount(e.SignedAmount()), ReasonTitle(e.Reason))
	}
	h.sender.Send(ctx, chatID, sb.String())
}

// ReasonTitle: название причины для пользователя.
func ReasonTitle(r models.Reason) string {
	switch r {
	case models.ReasonUsage:
		return "использование"
	case models.ReasonManualReset:
		return "ручной сброс"
	case models.ReasonRedemption:
		return "активация кода"
	case models.ReasonReferralReward:
		return "награда за приглашение"
	case models.ReasonNewUserBonus:
		return "приветственный бонус"
	case models.ReasonAdminAdjust:
		return "корректировка администратором"
	case models.ReasonPackageRenewal:
		return "пополнение тарифа"
	}
	return string(r)
}
