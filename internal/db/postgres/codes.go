package postgres

import (
	"context"
	"fmt"
	"time"

	"serotonyl.ru/wallet-bot/internal/models"
)

const codeColumns = `code, batch_id, code_type, code_value, valid_days, status,
	expires_at, used_by, used_at, created_by, notes, created_at`

func scanCode(row interface{ Scan(...any) error }) (*models.RedemptionCode, error) {
	var (
		c           models.RedemptionCode
		typ, status string
	)
	err := row.Scan(&c.Code, &c.BatchID, &typ, &c.Value, &c.ValidDays, &status,
		&c.ExpiresAt, &c.UsedBy, &c.UsedAt, &c.CreatedBy, &c.Notes, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Type = models.CodeType(typ)
	c.Status = models.CodeStatus(status)
	c.ExpiresAt = utcPtr(c.ExpiresAt)
	c.UsedAt = utcPtr(c.UsedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (t *pgTx) InsertCode(ctx context.Context, c *models.RedemptionCode) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO redemption_codes (code, batch_id, code_type, code_value, valid_days,
			status, expires_at, created_by, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (code) DO NOTHING
	`, c.Code, c.BatchID, string(c.Type), c.Value, c.ValidDays,
		string(c.Status), c.ExpiresAt, c.CreatedBy, c.Notes, c.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("ошибка сохранения кода: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) GetCode(ctx context.Context, code string) (*models.RedemptionCode, error) {
	c, err := scanCode(t.tx.QueryRow(ctx, `SELECT `+codeColumns+` FROM redemption_codes WHERE code = $1`, code))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения кода: %w", err)
	}
	return c, nil
}

// ClaimCode делает условное обновление: из двух параллельных погашений
// строку обновит только одно.
func (t *pgTx) ClaimCode(ctx context.Context, code string, userID int64, now time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE redemption_codes
		SET status = 'used', used_by = $2, used_at = $3
		WHERE code = $1 AND status = 'active' AND (expires_at IS NULL OR expires_at > $3)
	`, code, userID, now)
	if err != nil {
		return false, fmt.Errorf("ошибка погашения кода: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) UpdateCodeStatus(ctx context.Context, code string, from, to models.CodeStatus) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE redemption_codes SET status = $3 WHERE code = $1 AND status = $2`,
		code, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("ошибка смены статуса кода: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) ListCodesByBatch(ctx context.Context, batchID string) ([]*models.RedemptionCode, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+codeColumns+` FROM redemption_codes WHERE batch_id = $1 ORDER BY code`, batchID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пакета кодов: %w", err)
	}
	defer rows.Close()

	var out []*models.RedemptionCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения кода: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *pgTx) ExpireCodes(ctx context.Context, now time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE redemption_codes SET status = 'expired'
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("ошибка истечения кодов: %w", err)
	}
	return tag.RowsAffected(), nil
}
