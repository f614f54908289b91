// Package models описывает сущности кошелька: баланс, журнал операций,
// тарифы, коды погашения, приглашения, участников и платежи.
// Пакет не зависит от хранилища и используется всеми фичами.
package models

import "time"

// Wallet: баланс пользователя из двух корзин.
// Пакетные токены восстанавливаются каждый час до лимита тарифа,
// независимые токены не сгорают и тратятся во вторую очередь.
// На одного пользователя ровно одна запись.
type Wallet struct {
	UserID                 int64     `db:"user_id" json:"user_id"`                                   // Telegram user ID
	PackageTokensRemaining int64     `db:"package_tokens_remaining" json:"package_tokens_remaining"` // Пакетные токены (>= 0)
	IndependentTokens      int64     `db:"independent_tokens" json:"independent_tokens"`             // Независимые токены (>= 0)
	DailyUsageCount        int       `db:"daily_usage_count" json:"daily_usage_count"`               // Использований за UTC-сутки DailyUsageResetAt
	DailyUsageResetAt      time.Time `db:"daily_usage_reset_at" json:"daily_usage_reset_at"`         // Момент последнего изменения счётчика использований
	ManualResetCount       int       `db:"manual_reset_count" json:"manual_reset_count"`             // Ручных сбросов за UTC-сутки ManualResetAt
	ManualResetAt          time.Time `db:"manual_reset_at" json:"manual_reset_at"`                   // Момент последнего ручного сброса
	LastRecoveryAt         time.Time `db:"last_recovery_at" json:"last_recovery_at"`                 // Точка отсчёта почасового восстановления
	Version                int64     `db:"version" json:"version"`                                   // Растёт на каждой записи
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// NewWallet создаёт пустой кошелёк. Все отметки времени ставятся в now,
// поэтому счётчики считаются «сегодняшними» и равными нулю.
func NewWallet(userID int64, now time.Time) *Wallet {
	now = now.UTC()
	return &Wallet{
		UserID:            userID,
		DailyUsageResetAt: now,
		ManualResetAt:     now,
		LastRecoveryAt:    now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Total: сколько токенов доступно для списания.
func (w *Wallet) Total() int64 {
	return w.PackageTokensRemaining + w.IndependentTokens
}

// Clone возвращает независимую копию.
func (w *Wallet) Clone() *Wallet {
	c := *w
	return &c
}
