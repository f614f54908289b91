package wallet

import (
	"time"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/models"
)

// Limits: действующие для кошелька параметры тарифа.
// Без активного тарифа восстановления нет, а дневной лимит берётся
// из конфигурации.
type Limits struct {
	PlanCode          string
	Tier              int
	CreditCap         int64
	RecoveryRate      int64
	DailyUsageLimit   int
	ManualResetPerDay int
}

// HasPlan: есть ли активный тариф.
func (l Limits) HasPlan() bool {
	return l.PlanCode != ""
}

// LimitsFromPlan собирает лимиты из тарифа.
func LimitsFromPlan(p *models.Plan) Limits {
	return Limits{
		PlanCode:          p.Code,
		Tier:              p.Tier,
		CreditCap:         p.CreditCap,
		RecoveryRate:      p.RecoveryRate,
		DailyUsageLimit:   p.DailyUsageLimit,
		ManualResetPerDay: p.ManualResetPerDay,
	}
}

// RecoveryCredit считает, сколько пакетных токенов восстановить к моменту now.
//
// Параметры:
//   - w: кошелёк до восстановления
//   - lim: лимиты действующего тарифа
//   - now: момент расчёта
//
// Возвращает:
//   - credit: floor(часов)*rate, но не выше лимита тарифа
//   - hours: сколько целых часов засчитано; на столько сдвигается точка отсчёта
//
// Часы засчитываются и тогда, когда кошелёк уже на лимите (credit = 0):
// время, проведённое на лимите, не копится на потом.
// Без тарифа или до истечения часа hours = 0.
func RecoveryCredit(w *models.Wallet, lim Limits, now time.Time) (credit, hours int64) {
	if lim.RecoveryRate <= 0 {
		return 0, 0
	}
	elapsed := now.Sub(w.LastRecoveryAt)
	if elapsed < time.Hour {
		return 0, 0
	}
	hours = int64(elapsed / time.Hour)
	credit = max(min(hours*lim.RecoveryRate, lim.CreditCap-w.PackageTokensRemaining), 0)
	return credit, hours
}

// NextRecoveryAt: когда придёт следующая порция восстановления.
// Нулевое время, если восстанавливать нечего.
func NextRecoveryAt(w *models.Wallet, lim Limits) time.Time {
	if lim.RecoveryRate <= 0 || w.PackageTokensRemaining >= lim.CreditCap {
		return time.Time{}
	}
	return w.LastRecoveryAt.Add(time.Hour)
}

// EffectiveDailyUsage: сколько использований засчитано за текущие UTC-сутки.
// Счётчик из прошлых суток считается нулевым без записи в хранилище.
func EffectiveDailyUsage(w *models.Wallet, now time.Time) int {
	if !common.IsSameUTCDay(w.DailyUsageResetAt, now) {
		return 0
	}
	return w.DailyUsageCount
}

// EffectiveManualResets: сколько ручных сбросов сделано за текущие UTC-сутки.
func EffectiveManualResets(w *models.Wallet, now time.Time) int {
	if !common.IsSameUTCDay(w.ManualResetAt, now) {
		return 0
	}
	return w.ManualResetCount
}
