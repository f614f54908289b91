package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/wallet-bot/internal/db"
)

// Store: хранилище кошелька поверх pgxpool.
type Store struct {
	pool      *pgxpool.Pool
	txTimeout time.Duration
}

var _ db.Store = (*Store)(nil)

// NewStore оборачивает пул в хранилище кошелька.
//
// Параметры:
//   - pool: пул соединений из NewPool, миграции уже применены
//   - txTimeout: предел длительности одной транзакции; по истечении
//     она откатывается целиком, 0 отключает предел
func NewStore(pool *pgxpool.Pool, txTimeout time.Duration) *Store {
	return &Store{pool: pool, txTimeout: txTimeout}
}

// Open подключается по DSN и применяет миграции. Используется в интеграционных тестах.
//
// Пример:
//
//	s, err := postgres.Open(ctx, os.Getenv("TEST_DATABASE_DSN"), 5*time.Second)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer s.Close()
func Open(ctx context.Context, dsn string, txTimeout time.Duration) (*Store, error) {
	pool, err := newPool(ctx, dsn, 0, 0)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewStore(pool, txTimeout), nil
}

// Pool отдаёт пул для проверок здоровья.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// InTx выполняет fn в транзакции READ COMMITTED.
// Конкурентные изменения одного кошелька упорядочиваются блокировкой строки.
//
// Параметры:
//   - ctx: контекст; к нему добавляется txTimeout
//   - fn: работа внутри транзакции; ошибка fn откатывает всё
//
// Возвращает ошибку fn или коммита. Гонки PostgreSQL приходят как
// common.ErrConflict, их можно повторить.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	// Откатываем транзакцию, если что-то пошло не так
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("ошибка коммита: %w", err))
	}
	return nil
}

// Close закрывает пул.
func (s *Store) Close() {
	s.pool.Close()
}

// pgTx реализует db.Tx поверх pgx.Tx.
type pgTx struct {
	tx pgx.Tx
}

var _ db.Tx = (*pgTx)(nil)

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
