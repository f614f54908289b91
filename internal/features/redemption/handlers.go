// handlers.go обрабатывает команды !код, !коды и !отменить.

package redemption

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/models"
	"serotonyl.ru/wallet-bot/internal/ratelimit"
)

// maxCodesInMessage: сколько кодов партии показываем в чате.
const maxCodesInMessage = 50

// Handler обрабатывает команды кодов погашения.
type Handler struct {
	service *Service
	sender  common.Sender
	limiter ratelimit.Limiter
}

// NewHandler создаёт обработчик. limiter ограничивает попытки погашения.
func NewHandler(service *Service, sender common.Sender, limiter ratelimit.Limiter) *Handler {
	return &Handler{service: service, sender: sender, limiter: limiter}
}

// HandleRedeem обрабатывает !код PROMO-XXXX-XXXX-XXXX.
func (h *Handler) HandleRedeem(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 1 {
		h.sender.Send(ctx, chatID, "❌ Формат: !код PROMO-XXXX-XXXX-XXXX")
		return
	}
	if h.limiter != nil {
		ok, err := h.limiter.Allow(ctx, "redeem:"+strconv.FormatInt(userID, 10))
		if err != nil {
			log.WithError(err).Warn("Лимитер погашений недоступен")
		} else if !ok {
			h.sender.Send(ctx, chatID, "⏳ Слишком много попыток, подождите немного")
			return
		}
	}

	res, err := h.service.Redeem(ctx, userID, args[0])
	if err != nil {
		if common.CodeOf(err) == common.CodeInternal {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка погашения кода")
		}
		h.sender.Send(ctx, chatID, "❌ "+common.PublicMessage(err))
		return
	}

	if res.Subscription != nil {
		h.sender.Send(ctx, chatID, fmt.Sprintf("🎉 Тариф %s активирован до %s\n💰 Баланс: %s",
			res.Subscription.PlanCode,
			common.FormatDateTime(res.Subscription.ExpiresAt),
			common.FormatTokens(res.Balance.TotalAvailable)))
		return
	}
	h.sender.Send(ctx, chatID, fmt.Sprintf("🎉 Код погашен: %s\n💰 Баланс: %s",
		common.FormatTokensAmount(res.Credits),
		common.FormatTokens(res.Balance.TotalAvailable)))
}

// HandleGenerate обрабатывает !коды префикс количество credits|plan значение [дней].
// Права администратора проверяет вызывающий.
func (h *Handler) HandleGenerate(ctx context.Context, chatID, adminID int64, args []string) {
	if len(args) < 4 {
		h.sender.Send(ctx, chatID, "❌ Формат: !коды префикс количество credits|plan значение [дней]")
		return
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		h.sender.Send(ctx, chatID, "❌ Количество должно быть числом")
		return
	}
	req := GenerateRequest{
		Prefix:    args[0],
		Quantity:  qty,
		CodeType:  models.CodeType(strings.ToLower(args[2])),
		CodeValue: args[3],
		CreatedBy: adminID,
	}
	if len(args) > 4 {
		if req.ValidDays, err = strconv.Atoi(args[4]); err != nil {
			h.sender.Send(ctx, chatID, "❌ Срок должен быть числом дней")
			return
		}
	}

	batch, err := h.service.GenerateBatch(ctx, req)
	if err != nil {
		if common.CodeOf(err) == common.CodeInternal {
			log.WithError(err).WithField("admin_id", adminID).Error("Ошибка создания партии кодов")
		}
		h.sender.Send(ctx, chatID, "❌ "+common.PublicMessage(err))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ Создано кодов: %d из %d\nПартия: %s\n\n", len(batch.Codes), qty, batch.BatchID)
	for i, code := range batch.Codes {
		if i == maxCodesInMessage {
			fmt.Fprintf(&sb, "… и ещё %d", len(batch.Codes)-maxCodesInMessage)
			break
		}
		sb.WriteString(code)
		sb.WriteByte('\n')
	}
	h.sender.Send(ctx, chatID, sb.String())
}

// HandleCancel обрабатывает !отменить КОД.
func (h *Handler) HandleCancel(ctx context.Context, chatID, adminID int64, args []string) {
	if len(args) < 1 {
		h.sender.Send(ctx, chatID, "❌ Формат: !отменить КОД")
		return
	}
	c, err := h.service.SetCodeStatus(ctx, args[0], models.CodeCancelled)
	if err != nil {
		if common.CodeOf(err) == common.CodeInternal {
			log.WithError(err).WithField("admin_id", adminID).Error("Ошибка отмены кода")
		}
		h.sender.Send(ctx, chatID, "❌ "+common.PublicMessage(err))
		return
	}
	log.WithFields(log.Fields{
		"admin_id": adminID,
		"code":     c.Code,
	}).Info("Администратор отменил код")
	h.sender.Send(ctx, chatID, fmt.Sprintf("🚫 Код %s отменён", c.Code))
}
