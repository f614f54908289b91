package middleware

import (
	"context"
	"strconv"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/ratelimit"
)

// Throttle ограничивает частоту сообщений от одного пользователя.
// Недоступный лимитер не блокирует пользователей.
type Throttle struct {
	limiter ratelimit.Limiter
}

// NewThrottle создаёт ограничитель. nil-лимитер пропускает всё.
func NewThrottle(limiter ratelimit.Limiter) *Throttle {
	return &Throttle{limiter: limiter}
}

// Allow решает, обрабатывать ли сообщение userID.
func (t *Throttle) Allow(ctx context.Context, userID int64) bool {
	if t == nil || t.limiter == nil {
		return true
	}
	ok, err := t.limiter.Allow(ctx, "msg:"+strconv.FormatInt(userID, 10))
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Лимитер сообщений недоступен")
		return true
	}
	if !ok {
		log.WithField("user_id", userID).Debug("rate limited")
	}
	return ok
}
