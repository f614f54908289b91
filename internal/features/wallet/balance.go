package wallet

import (
	"time"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/models"
)

// Balance: представление баланса для клиентов.
type Balance struct {
	UserID                 int64     `json:"user_id"`
	PackageTokensRemaining int64     `json:"package_tokens_remaining"`
	IndependentTokens      int64     `json:"independent_tokens"`
	TotalAvailable         int64     `json:"total_available"`
	DailyUsageCount        int       `json:"daily_usage_count"`
	DailyUsageLimit        int       `json:"daily_usage_limit"`
	ResetsRemainingToday   int       `json:"resets_remaining_today"`
	NextResetAtUTC         time.Time `json:"next_reset_at_utc"`
	LastRecoveryAt         time.Time `json:"last_recovery_at"`
	NextRecoveryAt         time.Time `json:"next_recovery_at,omitzero"`
	PlanCode               string    `json:"plan_code,omitempty"`
	CreditCap              int64     `json:"credit_cap"`
	RecoveryRate           int64     `json:"recovery_rate"`
}

// BuildBalance считает представление с учётом ленивого сброса счётчиков.
func BuildBalance(w *models.Wallet, lim Limits, now time.Time) *Balance {
	return &Balance{
		UserID:                 w.UserID,
		PackageTokensRemaining: w.PackageTokensRemaining,
		IndependentTokens:      w.IndependentTokens,
		TotalAvailable:         w.Total(),
		DailyUsageCount:        EffectiveDailyUsage(w, now),
		DailyUsageLimit:        lim.DailyUsageLimit,
		ResetsRemainingToday:   ResetsRemaining(w, lim, now),
		NextResetAtUTC:         common.NextUTCMidnight(now),
		LastRecoveryAt:         w.LastRecoveryAt,
		NextRecoveryAt:         NextRecoveryAt(w, lim),
		PlanCode:               lim.PlanCode,
		CreditCap:              lim.CreditCap,
		RecoveryRate:           lim.RecoveryRate,
	}
}

// ResetsRemaining: сколько ручных сбросов осталось на текущие UTC-сутки.
func ResetsRemaining(w *models.Wallet, lim Limits, now time.Time) int {
	if !lim.HasPlan() {
		return 0
	}
	return max(lim.ManualResetPerDay-EffectiveManualResets(w, now), 0)
}
