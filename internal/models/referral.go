package models

import "time"

// InviteCode: личный код приглашения пользователя.
type InviteCode struct {
	UserID    int64     `db:"user_id" json:"user_id"`
	Code      string    `db:"code" json:"code"`
	ChangedAt time.Time `db:"changed_at" json:"changed_at"` // Последняя смена кода
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Referral: связь «пригласивший → приглашённый». Задаётся один раз.
type Referral struct {
	InviteeID int64     `db:"invitee_id" json:"invitee_id"`
	InviterID int64     `db:"inviter_id" json:"inviter_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
