package models

import "time"

// Plan: тариф. Определяет лимит пакетных токенов, скорость
// восстановления и дневные лимиты.
type Plan struct {
	Code              string `db:"code" json:"code"`
	Title             string `db:"title" json:"title"`
	Tier              int    `db:"tier" json:"tier"` // Больше = выше
	CreditCap         int64  `db:"credit_cap" json:"credit_cap"`
	RecoveryRate      int64  `db:"recovery_rate" json:"recovery_rate"` // Токенов в час
	DailyUsageLimit   int    `db:"daily_usage_limit" json:"daily_usage_limit"`
	ManualResetPerDay int    `db:"manual_reset_per_day" json:"manual_reset_per_day"`
	PriceMinor        int64  `db:"price_minor" json:"price_minor"` // Цена в копейках
}

// DefaultPlans: тарифы, которые засеваются миграцией.
func DefaultPlans() []*Plan {
	return []*Plan{
		{Code: "basic", Title: "Базовый", Tier: 1, CreditCap: 100, RecoveryRate: 10, DailyUsageLimit: 200, ManualResetPerDay: 1, PriceMinor: 29900},
		{Code: "pro", Title: "Про", Tier: 2, CreditCap: 500, RecoveryRate: 50, DailyUsageLimit: 1000, ManualResetPerDay: 3, PriceMinor: 99900},
		{Code: "ultra", Title: "Ультра", Tier: 3, CreditCap: 2000, RecoveryRate: 200, DailyUsageLimit: 5000, ManualResetPerDay: 5, PriceMinor: 299900},
	}
}

// SubscriptionStatus: состояние подписки.
type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"
)

// Subscription: активный тариф пользователя. Не больше одной на пользователя.
type Subscription struct {
	UserID    int64              `db:"user_id" json:"user_id"`
	PlanCode  string             `db:"plan_code" json:"plan_code"`
	Status    SubscriptionStatus `db:"status" json:"status"`
	StartedAt time.Time          `db:"started_at" json:"started_at"`
	ExpiresAt time.Time          `db:"expires_at" json:"expires_at"`
	Source    string             `db:"source" json:"source"` // payment | redemption | admin
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// ActiveAt: действует ли подписка в момент now.
func (s *Subscription) ActiveAt(now time.Time) bool {
	return s != nil && s.Status == SubscriptionActive && now.Before(s.ExpiresAt)
}

// Payment: обработанное событие об оплате. Уникально по OrderNo.
type Payment struct {
	OrderNo     string    `db:"order_no" json:"order_no"`
	UserID      int64     `db:"user_id" json:"user_id"`
	AmountMinor int64     `db:"amount_minor" json:"amount_minor"`
	PlanCode    string    `db:"plan_code" json:"plan_code"`
	ProcessedAt time.Time `db:"processed_at" json:"processed_at"`
}
