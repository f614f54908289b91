// queries.go содержит общие утилиты для выполнения запросов.

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/wallet-bot/internal/common"
)

// ExecMigrationSQL выполняет одну миграцию в транзакции.
//
// Параметры:
//   - ctx: контекст
//   - pool: пул соединений
//   - version: номер миграции в schema_migrations
//   - sql: текст миграции
//
// Возвращает:
//   - bool: false, если миграция уже была применена
//   - error: ошибка выполнения, транзакция при этом откатывается
func ExecMigrationSQL(ctx context.Context, pool *pgxpool.Pool, version int, sql string) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Уже применена: ничего не делаем
	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки миграции: %w", err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return false, fmt.Errorf("ошибка выполнения миграции %d: %w", version, err)
	}

	// Версия фиксируется в той же транзакции, что и сама миграция
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1)", version,
	); err != nil {
		return false, fmt.Errorf("ошибка записи версии миграции: %w", err)
	}

	return true, tx.Commit(ctx)
}

// Коды SQLSTATE, после которых транзакцию можно повторить.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
	sqlStateLockNotAvailable     = "55P03"
)

// classify превращает гонки PostgreSQL в common.ErrConflict.
// Остальные ошибки возвращаются как есть.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected,
			sqlStateUniqueViolation, sqlStateLockNotAvailable:
			return fmt.Errorf("%w: %s", common.ErrConflict, pgErr.Message)
		}
	}
	return err
}

// noRows: пустой результат QueryRow.
func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
