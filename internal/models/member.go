package models

import "time"

// Member: пользователь, который хотя бы раз писал боту.
type Member struct {
	UserID    int64     `db:"user_id" json:"user_id"`       // Telegram user ID
	Username  string    `db:"username" json:"username"`     // @username (может быть пустым)
	FirstName string    `db:"first_name" json:"first_name"` // Имя пользователя
	LastName  string    `db:"last_name" json:"last_name"`   // Фамилия (может быть пустой)
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DisplayName возвращает отображаемое имя пользователя.
// Если есть @username, возвращает его, иначе имя и фамилию.
func (m *Member) DisplayName() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	name := m.FirstName
	if m.LastName != "" {
		name += " " + m.LastName
	}
	return name
}
