// Package db описывает хранилище кошелька.
// Все изменения баланса идут через транзакцию Tx: одна Store.InTx,
// одна атомарная единица работы, после отката не остаётся ни строк
// журнала, ни изменений кошелька.
//
// Реализации: postgres (pgx, блокировки строк) и memory (для тестов
// и локального запуска).
package db

import (
	"context"
	"time"

	"serotonyl.ru/wallet-bot/internal/models"
)

// Store открывает транзакции.
type Store interface {
	// InTx выполняет fn в транзакции. Ошибка fn откатывает транзакцию.
	// Гонки сериализации и взаимоблокировки возвращаются как common.ErrConflict.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close()
}

// EntryQuery: поиск записей журнала для проверок идемпотентности.
// MetaKey/MetaValue сравниваются как metadata->>MetaKey = MetaValue.
type EntryQuery struct {
	UserID    int64 // 0: любой пользователь
	Reason    models.Reason
	MetaKey   string
	MetaValue string
}

// Tx: операции внутри одной транзакции.
// Методы Get*/Find* возвращают nil, nil, если записи нет.
type Tx interface {
	// --- Кошельки и журнал ---

	// LockWallet создаёт кошелёк при первом обращении и блокирует его
	// до конца транзакции.
	LockWallet(ctx context.Context, userID int64, now time.Time) (*models.Wallet, error)
	// SaveWallet записывает кошелёк. Версия в хранилище должна совпадать
	// с w.Version, иначе ErrConflict. После записи w.Version растёт на 1.
	SaveWallet(ctx context.Context, w *models.Wallet) error
	// AppendEntry добавляет запись журнала и проставляет ей ID.
	AppendEntry(ctx context.Context, e *models.LedgerEntry) error
	ExistsEntry(ctx context.Context, q EntryQuery) (bool, error)
	// ListEntries возвращает записи пользователя от новых к старым; при limit <= 0 все.
	ListEntries(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error)

	// --- Тарифы и подписки ---

	GetPlan(ctx context.Context, code string) (*models.Plan, error)
	ListPlans(ctx context.Context) ([]*models.Plan, error)
	GetSubscription(ctx context.Context, userID int64) (*models.Subscription, error)
	SaveSubscription(ctx context.Context, s *models.Subscription) error
	// InsertPayment возвращает false, если платёж с таким номером уже обработан.
	InsertPayment(ctx context.Context, p *models.Payment) (bool, error)

	// --- Коды погашения ---

	// InsertCode возвращает false при совпадении кода с существующим.
	InsertCode(ctx context.Context, c *models.RedemptionCode) (bool, error)
	GetCode(ctx context.Context, code string) (*models.RedemptionCode, error)
	// ClaimCode переводит активный код в used. false: код уже не активен.
	ClaimCode(ctx context.Context, code string, userID int64, now time.Time) (bool, error)
	// UpdateCodeStatus меняет статус только если текущий равен from.
	UpdateCodeStatus(ctx context.Context, code string, from, to models.CodeStatus) (bool, error)
	ListCodesByBatch(ctx context.Context, batchID string) ([]*models.RedemptionCode, error)
	// ExpireCodes переводит просроченные активные коды в expired.
	ExpireCodes(ctx context.Context, now time.Time) (int64, error)

	// --- Приглашения ---

	GetInviteCode(ctx context.Context, userID int64) (*models.InviteCode, error)
	FindInviteCode(ctx context.Context, code string) (*models.InviteCode, error)
	// SaveInviteCode возвращает false, если код занят другим пользователем.
	SaveInviteCode(ctx context.Context, ic *models.InviteCode) (bool, error)
	GetReferral(ctx context.Context, inviteeID int64) (*models.Referral, error)
	// InsertReferral возвращает false, если у приглашённого уже есть пригласивший.
	InsertReferral(ctx context.Context, r *models.Referral) (bool, error)

	// --- Участники ---

	// UpsertMember создаёт или обновляет участника. true: запись новая.
	UpsertMember(ctx context.Context, m *models.Member) (bool, error)
	GetMember(ctx context.Context, userID int64) (*models.Member, error)
	GetMemberByUsername(ctx context.Context, username string) (*models.Member, error)
}
