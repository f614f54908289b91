// Package postgres реализует хранилище кошелька в PostgreSQL.
// Используется пул соединений pgxpool; каждая операция кошелька
// выполняется в транзакции с блокировкой строки кошелька (SELECT ... FOR UPDATE).
//
// Гонки (сериализация, дедлок, дубликат ключа) превращаются в
// common.ErrConflict, и сервис кошелька повторяет транзакцию целиком.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/config"
)

// NewPool создаёт новый пул соединений к PostgreSQL.
//
// Параметры:
//   - ctx: контекст для отмены подключения
//   - cfg: конфигурация с DSN и размерами пула (DB_MAX_CONNS, DB_MIN_CONNS)
//
// Возвращает:
//   - *pgxpool.Pool: пул, на котором уже прошёл Ping
//   - error: ошибка, если база недоступна
//
// Пример:
//
//	pool, err := postgres.NewPool(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return newPool(ctx, cfg.DatabaseDSN(), cfg.DBMaxConns, cfg.DBMinConns)
}

// newPool собирает пул по DSN. Нулевой maxConns оставляет значение pgxpool.
func newPool(ctx context.Context, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	// Разбираем DSN, дальше правим только размеры и таймауты
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	// Настройки пула соединений
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	poolConfig.MinConns = minConns                 // Держать открытыми
	poolConfig.MaxConnLifetime = 1 * time.Hour     // Время жизни соединения
	poolConfig.MaxConnIdleTime = 30 * time.Minute  // Простой до закрытия
	poolConfig.HealthCheckPeriod = 1 * time.Minute // Проверка соединений

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула: %w", err)
	}

	// Проверяем, что база доступна
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("база данных недоступна: %w", err)
	}

	log.Info("Подключение к PostgreSQL установлено")
	return pool, nil
}

// RunMigrations создаёт таблицу schema_migrations и применяет
// встроенные миграции по порядку номеров.
// Уже применённые версии пропускаются, поэтому вызов безопасен при каждом старте.
//
// Параметры:
//   - ctx: контекст
//   - pool: пул соединений
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	// Таблица учёта версий
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ошибка создания таблицы миграций: %w", err)
	}

	// Каждая миграция идёт в своей транзакции вместе с отметкой о версии
	for _, m := range migrations {
		applied, err := ExecMigrationSQL(ctx, pool, m.version, m.sql)
		if err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		if applied {
			log.Infof("Миграция %d применена", m.version)
		}
	}

	log.Info("Миграции применены")
	return nil
}
