package bot

import (
	"context"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// Sender отправляет сообщения через Telegram Bot API.
type Sender struct {
	api *telego.Bot
}

// NewSender создаёт отправителя поверх клиента telego.
func NewSender(api *telego.Bot) *Sender {
	return &Sender{api: api}
}

// Send отправляет текст в чат. Ошибку только логирует: ответ пользователю
// не должен ронять обработку апдейта.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) {
	if _, err := s.api.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
		return
	}
	log.WithField("chat_id", chatID).Debug("message sent")
}
