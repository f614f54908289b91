// handlers.go обрабатывает !login, !logout, !начислить и !тариф.
// Команды работают только в личных сообщениях.

package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/features/members"
	"serotonyl.ru/wallet-bot/internal/features/subscription"
	"serotonyl.ru/wallet-bot/internal/features/wallet"
)

// Handler обрабатывает админ-команды.
type Handler struct {
	service       *Service
	memberService *members.Service
	wallet        *wallet.Service
	subscriptions *subscription.Service
	sender        common.Sender
}

// NewHandler создаёт обработчик админ-команд.
func NewHandler(service *Service, memberService *members.Service, w *wallet.Service, subs *subscription.Service, sender common.Sender) *Handler {
	return &Handler{
		service:       service,
		memberService: memberService,
		wallet:        w,
		subscriptions: subs,
		sender:        sender,
	}
}

// Guard пропускает только администратора с активной сессией.
// Не-администратору ничего не отвечает, чтобы не раскрывать команды.
func (h *Handler) Guard(ctx context.Context, chatID, userID int64) bool {
	err := h.service.Authorize(userID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, common.ErrUnauthorized):
		h.sender.Send(ctx, chatID, "🔐 Сначала войдите: !login пароль")
	}
	return false
}

// HandleLogin обрабатывает !login пароль.
func (h *Handler) HandleLogin(ctx context.Context, chatID, userID int64, args []string) {
	if !h.service.IsAdmin(userID) {
		return
	}
	if len(args) < 1 {
		h.sender.Send(ctx, chatID, "❌ Формат: !login пароль")
		return
	}
	sess, err := h.service.Login(ctx, userID, strings.Join(args, " "))
	switch {
	case err == nil:
		h.sender.Send(ctx, chatID, "✅ Вход выполнен до "+common.FormatDateTime(sess.ExpiresAt))
	case errors.Is(err, common.ErrLimitReached):
		h.sender.Send(ctx, chatID, "⏳ Слишком много попыток, подождите")
	case errors.Is(err, common.ErrUnauthorized):
		h.sender.Send(ctx, chatID, "❌ Неверный пароль")
	default:
		log.WithError(err).WithField("user_id", userID).Error("Ошибка входа администратора")
		h.sender.Send(ctx, chatID, "❌ "+common.PublicMessage(err))
	}
}

// HandleLogout обрабатывает !logout.
func (h *Handler) HandleLogout(ctx context.Context, chatID, userID int64) {
	if !h.service.IsAdmin(userID) {
		return
	}
	h.service.Logout(userID)
	h.sender.Send(ctx, chatID, "👋 Сессия закрыта")
}

// HandleAdjust обрабатывает !начислить @user add|subtract|set сумма [комментарий].
func (h *Handler) HandleAdjust(ctx context.Context, chatID, adminID int64, args []string) {
	if !h.Guard(ctx, chatID, adminID) {
		return
	}
	if len(args) < 3 {
		h.sender.Send(ctx, chatID, "❌ Формат: !начислить @user add|subtract|set сумма [комментарий]")
		return
	}
	amount, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		h.sender.Send(ctx, chatID, "❌ Сумма должна быть числом")
		return
	}
	target, ok := h.resolveUser(ctx, chatID, args[0])
	if !ok {
		return
	}

	out, err := h.wallet.AdminAdjust(ctx, wallet.AdjustRequest{
		AdminID: adminID,
		UserID:  target,
		Action:  args[1],
		Amount:  amount,
		Comment: strings.Join(args[3:], " "),
	})
	if err != nil {
		if common.CodeOf(err) == common.CodeInternal {
			log.WithError(err).WithField("admin_id", adminID).Error("Ошибка корректировки баланса")
		}
		h.sender.Send(ctx, chatID, "❌ "+common.PublicMessage(err))
		return
	}
	h.sender.Send(ctx, chatID, fmt.Sprintf("✅ Баланс %s: %s (независимых %s)",
		args[0], common.FormatTokens(out.Wallet.Total()), common.FormatNumber(out.Wallet.IndependentTokens)))
}

// HandleGrantPlan обрабатывает !тариф @user код [дней].
func (h *Handler) HandleGrantPlan(ctx context.Context, chatID, adminID int64, args []string) {
	if !h.Guard(ctx, chatID, adminID) {
		return
	}
	if len(args) < 2 {
		h.sender.Send(ctx, chatID, "❌ Формат: !тариф @user код [дней]")
		return
	}
	days := 0
	if len(args) > 2 {
		var err error
		if days, err = strconv.Atoi(args[2]); err != nil || days <= 0 {
			h.sender.Send(ctx, chatID, "❌ Срок должен быть положительным числом дней")
			return
		}
	}
	target, ok := h.resolveUser(ctx, chatID, args[0])
	if !ok {
		return
	}

	sub, err := h.subscriptions.ActivatePlan(ctx, target, strings.ToLower(args[1]), days, subscription.SourceAdmin)
	if err != nil {
		if common.CodeOf(err) == common.CodeInternal {
			log.WithError(err).WithField("admin_id", adminID).Error("Ошибка выдачи тарифа")
		}
		h.sender.Send(ctx, chatID, "❌ "+common.PublicMessage(err))
		return
	}
	log.WithFields(log.Fields{
		"admin_id":  adminID,
		"user_id":   target,
		"plan_code": sub.PlanCode,
	}).Info("Администратор выдал тариф")
	h.sender.Send(ctx, chatID, fmt.Sprintf("✅ %s: тариф %s до %s", args[0], sub.PlanCode, common.FormatDateTime(sub.ExpiresAt)))
}

// resolveUser принимает @username или числовой ID.
func (h *Handler) resolveUser(ctx context.Context, chatID int64, ref string) (int64, bool) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
		return id, true
	}
	m, err := h.memberService.GetByUsername(ctx, ref)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			h.sender.Send(ctx, chatID, "❌ Пользователь "+ref+" не найден")
		} else {
			h.sender.Send(ctx, chatID, "❌ "+common.PublicMessage(err))
		}
		return 0, false
	}
	return m.UserID, true
}
