package wallet

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/config"
	"serotonyl.ru/wallet-bot/internal/db"
	"serotonyl.ru/wallet-bot/internal/models"
)

// Service: единственная точка изменения балансов.
type Service struct {
	store             db.Store
	retries           int
	defaultDailyLimit int
	historyLimit      int
	now               func() time.Time
}

// NewService создаёт сервис кошелька.
//
// Параметры:
//   - store: хранилище (PostgreSQL или память)
//   - cfg: конфигурация; используются WALLET_CONFLICT_RETRIES,
//     WALLET_HISTORY_LIMIT и WALLET_DEFAULT_DAILY_LIMIT
//
// Часы по умолчанию: time.Now в UTC, в тестах подменяются через SetClock.
func NewService(store db.Store, cfg *config.Config) *Service {
	return &Service{
		store:             store,
		retries:           cfg.WalletConflictRetries,
		defaultDailyLimit: cfg.WalletDefaultDailyLimit,
		historyLimit:      cfg.WalletHistoryLimit,
		now:               time.Now,
	}
}

// SetClock подменяет часы. Все сервисы, построенные поверх кошелька,
// берут время отсюда.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Now: текущее время в UTC.
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

// Store отдаёт хранилище для операций, не трогающих баланс.
func (s *Service) Store() db.Store {
	return s.store
}

// Retries: сколько раз повторять транзакцию при конфликте.
func (s *Service) Retries() int {
	return s.retries
}

// Outcome: результат зафиксированной операции.
type Outcome struct {
	Wallet  *models.Wallet
	Limits  Limits
	Entries []*models.LedgerEntry // Все записи журнала, созданные операцией
	Now     time.Time
}

// Balance собирает представление баланса по итогам операции.
func (o *Outcome) Balance() *Balance {
	return BuildBalance(o.Wallet, o.Limits, o.Now)
}

// LastEntry: последняя запись журнала операции или nil.
func (o *Outcome) LastEntry() *models.LedgerEntry {
	if len(o.Entries) == 0 {
		return nil
	}
	return o.Entries[len(o.Entries)-1]
}

// Update выполняет fn над заблокированным кошельком userID в одной транзакции.
// Перед вызовом fn к кошельку применяется восстановление.
// При конфликте транзакция повторяется целиком, fn вызывается заново.
func (s *Service) Update(ctx context.Context, userID int64, fn func(op *Op) error) (*Outcome, error) {
	if userID <= 0 {
		return nil, common.Validation("некорректный user_id %d", userID)
	}

	var out *Outcome
	attempt := 0
	err := common.Retry(ctx, s.retries, func() error {
		attempt++
		if attempt > 1 {
			log.WithFields(log.Fields{
				"user_id": userID,
				"attempt": attempt,
			}).Warn("Конфликт транзакции кошелька, повторяем")
		}
		var err error
		out, err = s.updateOnce(ctx, userID, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) updateOnce(ctx context.Context, userID int64, fn func(op *Op) error) (*Outcome, error) {
	var op *Op
	err := s.store.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		op = &Op{
			ctx:      ctx,
			Tx:       tx,
			Now:      s.Now(),
			svc:      s,
			wallets:  make(map[int64]*models.Wallet),
			original: make(map[int64]models.Wallet),
			limits:   make(map[int64]Limits),
		}
		w, err := op.Join(userID)
		if err != nil {
			return err
		}
		op.Wallet = w
		op.Limits = op.limits[userID]

		if fn != nil {
			if err := fn(op); err != nil {
				return err
			}
		}
		return op.flush()
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Wallet:  op.Wallet.Clone(),
		Limits:  op.limits[userID],
		Entries: op.Entries,
		Now:     op.Now,
	}, nil
}

// ResolveLimits возвращает лимиты действующего тарифа пользователя.
func (s *Service) ResolveLimits(ctx context.Context, tx db.Tx, userID int64, now time.Time) (Limits, error) {
	sub, err := tx.GetSubscription(ctx, userID)
	if err != nil {
		return Limits{}, err
	}
	if sub.ActiveAt(now) {
		plan, err := tx.GetPlan(ctx, sub.PlanCode)
		if err != nil {
			return Limits{}, err
		}
		if plan != nil {
			return LimitsFromPlan(plan), nil
		}
		log.WithFields(log.Fields{
			"user_id":   userID,
			"plan_code": sub.PlanCode,
		}).Error("Подписка ссылается на несуществующий тариф")
	}
	return Limits{DailyUsageLimit: s.defaultDailyLimit}, nil
}

// Op: контекст одной транзакции кошелька.
type Op struct {
	ctx context.Context
	// Tx: транзакция хранилища; через неё фичи читают и пишут свои таблицы.
	Tx  db.Tx
	Now time.Time
	// Wallet: основной кошелёк операции, уже после восстановления.
	Wallet *models.Wallet
	Limits Limits
	// Entries: записи журнала в порядке создания.
	Entries []*models.LedgerEntry

	svc      *Service
	wallets  map[int64]*models.Wallet
	original map[int64]models.Wallet
	limits   map[int64]Limits
}

// Context: контекст транзакции.
func (op *Op) Context() context.Context {
	return op.ctx
}

// Join блокирует ещё один кошелёк в этой же транзакции и применяет
// к нему восстановление. Повторный вызов возвращает тот же объект.
func (op *Op) Join(userID int64) (*models.Wallet, error) {
	if w, ok := op.wallets[userID]; ok {
		return w, nil
	}
	if userID <= 0 {
		return nil, common.Validation("некорректный user_id %d", userID)
	}
	w, err := op.Tx.LockWallet(op.ctx, userID, op.Now)
	if err != nil {
		return nil, err
	}
	lim, err := op.svc.ResolveLimits(op.ctx, op.Tx, userID, op.Now)
	if err != nil {
		return nil, err
	}
	op.wallets[userID] = w
	op.original[userID] = *w
	op.limits[userID] = lim

	if err := op.recover(w, lim); err != nil {
		return nil, err
	}
	return w, nil
}

// LimitsOf: лимиты присоединённого кошелька.
func (op *Op) LimitsOf(userID int64) Limits {
	return op.limits[userID]
}

// RefreshLimits перечитывает тариф основного кошелька после его смены.
func (op *Op) RefreshLimits() error {
	lim, err := op.svc.ResolveLimits(op.ctx, op.Tx, op.Wallet.UserID, op.Now)
	if err != nil {
		return err
	}
	op.limits[op.Wallet.UserID] = lim
	op.Limits = lim
	return nil
}

// recover применяет восстановление к присоединённому кошельку.
// Начисление пишется в журнал, сдвиг часов без начисления только сохраняет кошелёк.
func (op *Op) recover(w *models.Wallet, lim Limits) error {
	credit, hours := RecoveryCredit(w, lim, op.Now)
	if hours == 0 {
		return nil
	}
	if credit > 0 {
		_, err := op.ApplyTo(w, Deltas{Package: credit}, ModeStrict, models.PackageRenewalMetadata{
			PlanCode: lim.PlanCode,
			Kind:     models.RenewalRecovery,
			Hours:    hours,
		})
		if err != nil {
			return err
		}
	}
	w.LastRecoveryAt = w.LastRecoveryAt.Add(time.Duration(hours) * time.Hour)
	return nil
}

// Apply меняет основной кошелёк операции.
func (op *Op) Apply(d Deltas, mode Mode, meta models.Metadata) (*models.LedgerEntry, error) {
	return op.ApplyTo(op.Wallet, d, mode, meta)
}

// ApplyTo меняет присоединённый кошелёк и пишет ровно одну запись журнала
// со снимками обеих корзин до и после.
func (op *Op) ApplyTo(w *models.Wallet, d Deltas, mode Mode, meta models.Metadata) (*models.LedgerEntry, error) {
	if meta == nil {
		return nil, fmt.Errorf("изменение баланса без метаданных")
	}
	if _, ok := op.wallets[w.UserID]; !ok {
		return nil, fmt.Errorf("кошелёк %d не заблокирован в этой транзакции", w.UserID)
	}

	pkgAfter, indAfter, err := Transition(w.PackageTokensRemaining, w.IndependentTokens, d, mode)
	if err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		UserID:            w.UserID,
		Bucket:            bucketOf(Deltas{Package: pkgAfter - w.PackageTokensRemaining, Independent: indAfter - w.IndependentTokens}, meta.Reason()),
		PackageBefore:     w.PackageTokensRemaining,
		PackageAfter:      pkgAfter,
		IndependentBefore: w.IndependentTokens,
		IndependentAfter:  indAfter,
		Reason:            meta.Reason(),
		Metadata:          meta,
		CreatedAt:         op.Now,
	}
	if signed := entry.SignedAmount(); signed < 0 {
		entry.Type = models.EntryExpense
		entry.Amount = -signed
	} else {
		entry.Type = models.EntryIncome
		entry.Amount = signed
	}
	if entry.PackageDelta() == 0 && entry.IndependentDelta() == 0 {
		entry.Bucket = bucketOf(d, meta.Reason())
	}

	if err := op.Tx.AppendEntry(op.ctx, entry); err != nil {
		return nil, err
	}
	w.PackageTokensRemaining = pkgAfter
	w.IndependentTokens = indAfter
	op.Entries = append(op.Entries, entry)
	return entry, nil
}

// flush сохраняет изменённые кошельки. Нетронутый кошелёк не пишется.
func (op *Op) flush() error {
	for id, w := range op.wallets {
		if *w == op.original[id] {
			continue
		}
		w.UpdatedAt = op.Now
		if err := op.Tx.SaveWallet(op.ctx, w); err != nil {
			return err
		}
	}
	return nil
}

// GetOrCreateWallet возвращает кошелёк, создавая пустой при первом обращении.
func (s *Service) GetOrCreateWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	out, err := s.Update(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	return out.Wallet, nil
}

// GetBalance возвращает баланс с учётом восстановления.
func (s *Service) GetBalance(ctx context.Context, userID int64) (*Balance, error) {
	out, err := s.Update(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	return out.Balance(), nil
}

// ApplyBalanceDelta: прямое изменение корзин одной записью журнала.
// Используется административными и системными начислениями.
func (s *Service) ApplyBalanceDelta(ctx context.Context, userID int64, d Deltas, mode Mode, meta models.Metadata) (*Outcome, error) {
	return s.Update(ctx, userID, func(op *Op) error {
		_, err := op.Apply(d, mode, meta)
		return err
	})
}

// History возвращает последние записи журнала пользователя.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = s.historyLimit
	}
	var entries []*models.LedgerEntry
	err := s.store.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		entries, err = tx.ListEntries(ctx, userID, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории: %w", err)
	}
	return entries, nil
}

// Replay проигрывает журнал пользователя с нуля и возвращает итоговые корзины.
// Результат обязан совпадать с кошельком.
func (s *Service) Replay(ctx context.Context, userID int64) (pkg, ind int64, err error) {
	err = s.store.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		entries, err := tx.ListEntries(ctx, userID, 0)
		if err != nil {
			return err
		}
		pkg, ind = ReplayEntries(entries)
		return nil
	})
	return pkg, ind, err
}

// ReplayEntries суммирует изменения корзин. Порядок записей не важен.
func ReplayEntries(entries []*models.LedgerEntry) (pkg, ind int64) {
	for _, e := range entries {
		pkg += e.PackageDelta()
		ind += e.IndependentDelta()
	}
	return pkg, ind
}
