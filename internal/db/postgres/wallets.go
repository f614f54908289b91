package postgres

import (
	"context"
	"fmt"
	"time"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/db"
	"serotonyl.ru/wallet-bot/internal/models"
)

const walletColumns = `user_id, package_tokens_remaining, independent_tokens,
	daily_usage_count, daily_usage_reset_at, manual_reset_count, manual_reset_at,
	last_recovery_at, version, created_at, updated_at`

// LockWallet создаёт кошелёк при первом обращении и берёт блокировку строки.
func (t *pgTx) LockWallet(ctx context.Context, userID int64, now time.Time) (*models.Wallet, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO wallets (user_id, daily_usage_reset_at, manual_reset_at, last_recovery_at, created_at, updated_at)
		VALUES ($1, $2, $2, $2, $2, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("ошибка создания кошелька: %w", err)
	}

	var w models.Wallet
	err = t.tx.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(
		&w.UserID, &w.PackageTokensRemaining, &w.IndependentTokens,
		&w.DailyUsageCount, &w.DailyUsageResetAt, &w.ManualResetCount, &w.ManualResetAt,
		&w.LastRecoveryAt, &w.Version, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки кошелька: %w", err)
	}
	w.DailyUsageResetAt = w.DailyUsageResetAt.UTC()
	w.ManualResetAt = w.ManualResetAt.UTC()
	w.LastRecoveryAt = w.LastRecoveryAt.UTC()
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return &w, nil
}

// SaveWallet записывает кошелёк с проверкой версии.
func (t *pgTx) SaveWallet(ctx context.Context, w *models.Wallet) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE wallets SET
			package_tokens_remaining = $2,
			independent_tokens = $3,
			daily_usage_count = $4,
			daily_usage_reset_at = $5,
			manual_reset_count = $6,
			manual_reset_at = $7,
			last_recovery_at = $8,
			version = version + 1,
			updated_at = $9
		WHERE user_id = $1 AND version = $10
	`, w.UserID, w.PackageTokensRemaining, w.IndependentTokens,
		w.DailyUsageCount, w.DailyUsageResetAt, w.ManualResetCount, w.ManualResetAt,
		w.LastRecoveryAt, w.UpdatedAt, w.Version,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения кошелька: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("кошелёк %d изменён параллельно: %w", w.UserID, common.ErrConflict)
	}
	w.Version++
	return nil
}

// AppendEntry добавляет запись журнала.
func (t *pgTx) AppendEntry(ctx context.Context, e *models.LedgerEntry) error {
	meta, err := models.EncodeMetadata(e.Metadata)
	if err != nil {
		return err
	}
	err = t.tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (user_id, type, bucket, amount,
			package_before, package_after, independent_before, independent_after,
			reason, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, e.UserID, string(e.Type), string(e.Bucket), e.Amount,
		e.PackageBefore, e.PackageAfter, e.IndependentBefore, e.IndependentAfter,
		string(e.Reason), string(meta), e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал: %w", err)
	}
	return nil
}

// ExistsEntry проверяет наличие записи по причине и полю метаданных.
func (t *pgTx) ExistsEntry(ctx context.Context, q db.EntryQuery) (bool, error) {
	sql := `SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE reason = $1`
	args := []any{string(q.Reason)}
	if q.UserID != 0 {
		args = append(args, q.UserID)
		sql += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if q.MetaKey != "" {
		args = append(args, q.MetaKey, q.MetaValue)
		sql += fmt.Sprintf(" AND metadata->>$%d = $%d", len(args)-1, len(args))
	}
	sql += ")"

	var exists bool
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка поиска в журнале: %w", err)
	}
	return exists, nil
}

// ListEntries возвращает записи пользователя от новых к старым.
func (t *pgTx) ListEntries(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error) {
	sql := `
		SELECT id, user_id, type, bucket, amount,
			package_before, package_after, independent_before, independent_after,
			reason, metadata, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY id DESC`
	args := []any{userID}
	if limit > 0 {
		sql += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала: %w", err)
	}
	defer rows.Close()

	var out []*models.LedgerEntry
	for rows.Next() {
		var (
			e                   models.LedgerEntry
			typ, bucket, reason string
			meta                []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &typ, &bucket, &e.Amount,
			&e.PackageBefore, &e.PackageAfter, &e.IndependentBefore, &e.IndependentAfter,
			&reason, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения журнала: %w", err)
		}
		e.Type = models.EntryType(typ)
		e.Bucket = models.Bucket(bucket)
		e.Reason = models.Reason(reason)
		e.CreatedAt = e.CreatedAt.UTC()
		if e.Metadata, err = models.DecodeMetadata(e.Reason, meta); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
