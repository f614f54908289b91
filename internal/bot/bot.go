// Package bot содержит Telegram-интерфейс кошелька: приём апдейтов,
// маршрутизацию команд и отправку ответов.
package bot

import (
	"context"
	"strings"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/bot/middleware"
	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/config"
	"serotonyl.ru/wallet-bot/internal/features/admin"
	"serotonyl.ru/wallet-bot/internal/features/members"
	"serotonyl.ru/wallet-bot/internal/features/redemption"
	"serotonyl.ru/wallet-bot/internal/features/referral"
	"serotonyl.ru/wallet-bot/internal/features/reset"
	"serotonyl.ru/wallet-bot/internal/features/subscription"
	"serotonyl.ru/wallet-bot/internal/features/usage"
	"serotonyl.ru/wallet-bot/internal/features/wallet"
	"serotonyl.ru/wallet-bot/internal/models"
	"serotonyl.ru/wallet-bot/internal/ratelimit"
)

const helpText = `👛 Кошелёк токенов

/баланс — баланс и лимиты
/история — последние операции
/списать сумма [сервис] — списать токены
/сброс — долить пакетные токены до лимита тарифа
/код КОД — погасить код
/тарифы — тарифы и текущая подписка
/приглашение — твой код приглашения
/мойкод НОВЫЙКОД — сменить код приглашения
/пригласил КОД — указать, кто тебя пригласил`

// Handlers: обработчики фич, которые вызывает бот.
type Handlers struct {
	MemberService *members.Service
	Members       *members.Handler
	Wallet        *wallet.Handler
	Usage         *usage.Handler
	Reset         *reset.Handler
	Redemption    *redemption.Handler
	Referral      *referral.Handler
	Subscription  *subscription.Handler
	Admin         *admin.Handler
}

// Bot: главная структура бота, объединяющая все компоненты.
type Bot struct {
	api    *telego.Bot
	cfg    *config.Config
	sender common.Sender

	h        Handlers
	throttle *middleware.Throttle
	parser   *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт бота. limiter ограничивает частоту сообщений на пользователя.
func New(api *telego.Bot, cfg *config.Config, sender common.Sender, h Handlers, limiter ratelimit.Limiter) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:      api,
		cfg:      cfg,
		sender:   sender,
		h:        h,
		throttle: middleware.NewThrottle(limiter),
		parser:   NewCommandParser(),
		inflight: make(chan struct{}, maxInFlight),
	}
}

// Start запускает long polling и блокируется до отмены ctx.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: b.cfg.BotUpdateTimeoutSeconds,
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			return nil

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return nil
			}

			// лимит параллелизма
			select {
			case b.inflight <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			go func(upd telego.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)

	message := update.Message
	if message == nil || message.From == nil || message.Text == "" {
		return
	}
	middleware.LogMessage(message)

	// Кошелёк личный: в группах не отвечаем
	if message.Chat.Type != telego.ChatTypePrivate {
		return
	}

	if !b.throttle.Allow(ctx, message.From.ID) {
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if !isCommand {
		return
	}
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": len(args),
	}).Debug("parsed command")

	member := memberFrom(message.From)
	if cmd != "start" {
		if _, err := b.h.MemberService.EnsureMember(ctx, member); err != nil {
			log.WithError(err).WithField("user_id", member.UserID).Warn("EnsureMember failed")
		}
	}

	b.routeCommand(ctx, message.Chat.ID, member, cmd, args)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, chatID int64, m *models.Member, cmd string, args []string) {
	userID := m.UserID

	switch cmd {
	case "start":
		b.h.Members.HandleStart(ctx, chatID, m, strings.Join(args, " "))
	case "help", "помощь":
		b.sender.Send(ctx, chatID, helpText)

	case "баланс":
		b.h.Wallet.HandleBalance(ctx, chatID, userID)
	case "история":
		b.h.Wallet.HandleHistory(ctx, chatID, userID)
	case "списать":
		b.h.Usage.HandleUse(ctx, chatID, userID, args)
	case "сброс":
		b.h.Reset.HandleReset(ctx, chatID, userID)
	case "код":
		b.h.Redemption.HandleRedeem(ctx, chatID, userID, args)
	case "тарифы":
		b.h.Subscription.HandlePlans(ctx, chatID, userID)

	case "приглашение":
		b.h.Referral.HandleInvite(ctx, chatID, userID)
	case "мойкод":
		b.h.Referral.HandleChangeCode(ctx, chatID, userID, args)
	case "пригласил":
		if len(args) < 1 {
			b.sender.Send(ctx, chatID, "❌ Формат: !пригласил КОД")
			return
		}
		b.h.Referral.HandleAttach(ctx, chatID, userID, args[0], false)

	case "login":
		b.h.Admin.HandleLogin(ctx, chatID, userID, args)
	case "logout":
		b.h.Admin.HandleLogout(ctx, chatID, userID)
	case "начислить":
		b.h.Admin.HandleAdjust(ctx, chatID, userID, args)
	case "тариф":
		b.h.Admin.HandleGrantPlan(ctx, chatID, userID, args)
	case "коды":
		if b.h.Admin.Guard(ctx, chatID, userID) {
			b.h.Redemption.HandleGenerate(ctx, chatID, userID, args)
		}
	case "отменить":
		if b.h.Admin.Guard(ctx, chatID, userID) {
			b.h.Redemption.HandleCancel(ctx, chatID, userID, args)
		}
	}
}

func memberFrom(u *telego.User) *models.Member {
	return &models.Member{
		UserID:    u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
