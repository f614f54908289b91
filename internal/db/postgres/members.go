package postgres

import (
	"context"
	"fmt"
	"strings"

	"serotonyl.ru/wallet-bot/internal/models"
)

// UpsertMember создаёт участника или обновляет имя и username.
// xmax = 0 у только что вставленной строки.
func (t *pgTx) UpsertMember(ctx context.Context, m *models.Member) (bool, error) {
	var inserted bool
	err := t.tx.QueryRow(ctx, `
		INSERT INTO members (user_id, username, first_name, last_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0)
	`, m.UserID, m.Username, m.FirstName, m.LastName, m.UpdatedAt).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("ошибка сохранения участника: %w", err)
	}
	return inserted, nil
}

func (t *pgTx) getMember(ctx context.Context, where string, arg any) (*models.Member, error) {
	var m models.Member
	err := t.tx.QueryRow(ctx,
		`SELECT user_id, username, first_name, last_name, created_at, updated_at FROM members WHERE `+where, arg,
	).Scan(&m.UserID, &m.Username, &m.FirstName, &m.LastName, &m.CreatedAt, &m.UpdatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения участника: %w", err)
	}
	return &m, nil
}

func (t *pgTx) GetMember(ctx context.Context, userID int64) (*models.Member, error) {
	return t.getMember(ctx, "user_id = $1", userID)
}

func (t *pgTx) GetMemberByUsername(ctx context.Context, username string) (*models.Member, error) {
	username = strings.TrimPrefix(username, "@")
	return t.getMember(ctx, "LOWER(username) = LOWER($1) LIMIT 1", username)
}
