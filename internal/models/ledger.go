package models

import "time"

// EntryType: направление движения токенов.
type EntryType string

const (
	EntryIncome  EntryType = "income"
	EntryExpense EntryType = "expense"
)

// Bucket: какая корзина изменилась.
// mixed означает, что одно списание задело обе корзины.
type Bucket string

const (
	BucketPackage     Bucket = "package"
	BucketIndependent Bucket = "independent"
	BucketMixed       Bucket = "mixed"
)

// Reason: причина изменения баланса.
type Reason string

const (
	ReasonUsage          Reason = "usage"
	ReasonManualReset    Reason = "manual_reset"
	ReasonRedemption     Reason = "redemption"
	ReasonReferralReward Reason = "referral_reward"
	ReasonNewUserBonus   Reason = "new_user_bonus"
	ReasonAdminAdjust    Reason = "admin_adjust"
	ReasonPackageRenewal Reason = "package_renewal"
)

// Valid: известна ли причина.
func (r Reason) Valid() bool {
	switch r {
	case ReasonUsage, ReasonManualReset, ReasonRedemption, ReasonReferralReward,
		ReasonNewUserBonus, ReasonAdminAdjust, ReasonPackageRenewal:
		return true
	}
	return false
}

// LedgerEntry: одна запись журнала. Записи только добавляются.
// Снимки до/после хранятся по каждой корзине отдельно, поэтому
// баланс кошелька всегда можно восстановить проигрыванием журнала.
type LedgerEntry struct {
	ID                int64     `db:"id" json:"id"`
	UserID            int64     `db:"user_id" json:"user_id"`
	Type              EntryType `db:"type" json:"type"`
	Bucket            Bucket    `db:"bucket" json:"bucket"`
	Amount            int64     `db:"amount" json:"amount"` // Модуль суммарного изменения
	PackageBefore     int64     `db:"package_before" json:"package_before"`
	PackageAfter      int64     `db:"package_after" json:"package_after"`
	IndependentBefore int64     `db:"independent_before" json:"independent_before"`
	IndependentAfter  int64     `db:"independent_after" json:"independent_after"`
	Reason            Reason    `db:"reason" json:"reason"`
	Metadata          Metadata  `db:"metadata" json:"metadata"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// PackageDelta возвращает изменение пакетной корзины.
func (e *LedgerEntry) PackageDelta() int64 {
	return e.PackageAfter - e.PackageBefore
}

// IndependentDelta: изменение независимой корзины.
func (e *LedgerEntry) IndependentDelta() int64 {
	return e.IndependentAfter - e.IndependentBefore
}

// SignedAmount: суммарное изменение со знаком.
func (e *LedgerEntry) SignedAmount() int64 {
	return e.PackageDelta() + e.IndependentDelta()
}
