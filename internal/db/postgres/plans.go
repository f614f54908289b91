package postgres

import (
	"context"
	"fmt"

	"serotonyl.ru/wallet-bot/internal/models"
)

const planColumns = `code, title, tier, credit_cap, recovery_rate, daily_usage_limit, manual_reset_per_day, price_minor`

func scanPlan(row interface{ Scan(...any) error }) (*models.Plan, error) {
	var p models.Plan
	err := row.Scan(&p.Code, &p.Title, &p.Tier, &p.CreditCap, &p.RecoveryRate,
		&p.DailyUsageLimit, &p.ManualResetPerDay, &p.PriceMinor)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) GetPlan(ctx context.Context, code string) (*models.Plan, error) {
	p, err := scanPlan(t.tx.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE code = $1`, code))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения тарифа: %w", err)
	}
	return p, nil
}

func (t *pgTx) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+planColumns+` FROM plans ORDER BY tier`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения тарифов: %w", err)
	}
	defer rows.Close()

	var out []*models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения тарифа: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) GetSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	var (
		s      models.Subscription
		status string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT user_id, plan_code, status, started_at, expires_at, source, updated_at
		FROM subscriptions WHERE user_id = $1
	`, userID).Scan(&s.UserID, &s.PlanCode, &status, &s.StartedAt, &s.ExpiresAt, &s.Source, &s.UpdatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения подписки: %w", err)
	}
	s.Status = models.SubscriptionStatus(status)
	s.StartedAt = s.StartedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func (t *pgTx) SaveSubscription(ctx context.Context, s *models.Subscription) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO subscriptions (user_id, plan_code, status, started_at, expires_at, source, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_code = EXCLUDED.plan_code,
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			expires_at = EXCLUDED.expires_at,
			source = EXCLUDED.source,
			updated_at = EXCLUDED.updated_at
	`, s.UserID, s.PlanCode, string(s.Status), s.StartedAt, s.ExpiresAt, s.Source, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения подписки: %w", err)
	}
	return nil
}

func (t *pgTx) InsertPayment(ctx context.Context, p *models.Payment) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO payments (order_no, user_id, amount_minor, plan_code, processed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_no) DO NOTHING
	`, p.OrderNo, p.UserID, p.AmountMinor, p.PlanCode, p.ProcessedAt)
	if err != nil {
		return false, fmt.Errorf("ошибка записи платежа: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
