package postgres

import (
	"context"
	"fmt"

	"serotonyl.ru/wallet-bot/internal/models"
)

func (t *pgTx) getInviteCode(ctx context.Context, where string, arg any) (*models.InviteCode, error) {
	var ic models.InviteCode
	err := t.tx.QueryRow(ctx,
		`SELECT user_id, code, changed_at, created_at FROM invite_codes WHERE `+where, arg,
	).Scan(&ic.UserID, &ic.Code, &ic.ChangedAt, &ic.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения кода приглашения: %w", err)
	}
	ic.ChangedAt = ic.ChangedAt.UTC()
	ic.CreatedAt = ic.CreatedAt.UTC()
	return &ic, nil
}

func (t *pgTx) GetInviteCode(ctx context.Context, userID int64) (*models.InviteCode, error) {
	return t.getInviteCode(ctx, "user_id = $1", userID)
}

func (t *pgTx) FindInviteCode(ctx context.Context, code string) (*models.InviteCode, error) {
	return t.getInviteCode(ctx, "code = $1", code)
}

// SaveInviteCode сначала проверяет, свободен ли код: нарушение
// уникальности прервало бы всю транзакцию.
func (t *pgTx) SaveInviteCode(ctx context.Context, ic *models.InviteCode) (bool, error) {
	owner, err := t.FindInviteCode(ctx, ic.Code)
	if err != nil {
		return false, err
	}
	if owner != nil && owner.UserID != ic.UserID {
		return false, nil
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO invite_codes (user_id, code, changed_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET code = EXCLUDED.code, changed_at = EXCLUDED.changed_at
	`, ic.UserID, ic.Code, ic.ChangedAt, ic.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("ошибка сохранения кода приглашения: %w", err)
	}
	return true, nil
}

func (t *pgTx) GetReferral(ctx context.Context, inviteeID int64) (*models.Referral, error) {
	var r models.Referral
	err := t.tx.QueryRow(ctx,
		`SELECT invitee_id, inviter_id, created_at FROM referrals WHERE invitee_id = $1`, inviteeID,
	).Scan(&r.InviteeID, &r.InviterID, &r.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения приглашения: %w", err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func (t *pgTx) InsertReferral(ctx context.Context, r *models.Referral) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO referrals (invitee_id, inviter_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (invitee_id) DO NOTHING
	`, r.InviteeID, r.InviterID, r.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("ошибка сохранения приглашения: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
