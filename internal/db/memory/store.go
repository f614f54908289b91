// Package memory реализует хранилище в памяти процесса.
// Используется в тестах и при STORE_DRIVER=memory.
//
// Транзакции выполняются строго по одной под общим мьютексом.
// Каждая транзакция работает с копией состояния и публикует её
// только при успешном завершении, поэтому откат ничего не оставляет.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/db"
	"serotonyl.ru/wallet-bot/internal/models"
)

type state struct {
	wallets      map[int64]*models.Wallet
	entries      []*models.LedgerEntry
	nextEntryID  int64
	plans        map[string]*models.Plan
	subs         map[int64]*models.Subscription
	payments     map[string]*models.Payment
	codes        map[string]*models.RedemptionCode
	invites      map[int64]*models.InviteCode
	inviteOwners map[string]int64
	referrals    map[int64]*models.Referral
	members      map[int64]*models.Member
}

func newState() *state {
	return &state{
		wallets:      make(map[int64]*models.Wallet),
		plans:        make(map[string]*models.Plan),
		subs:         make(map[int64]*models.Subscription),
		payments:     make(map[string]*models.Payment),
		codes:        make(map[string]*models.RedemptionCode),
		invites:      make(map[int64]*models.InviteCode),
		inviteOwners: make(map[string]int64),
		referrals:    make(map[int64]*models.Referral),
		members:      make(map[int64]*models.Member),
	}
}

// fork копирует таблицы. Значения не копируются: транзакция никогда
// не меняет сохранённые объекты на месте, только подменяет их.
func (s *state) fork() *state {
	return &state{
		wallets:      cloneMap(s.wallets),
		entries:      s.entries[:len(s.entries):len(s.entries)],
		nextEntryID:  s.nextEntryID,
		plans:        cloneMap(s.plans),
		subs:         cloneMap(s.subs),
		payments:     cloneMap(s.payments),
		codes:        cloneMap(s.codes),
		invites:      cloneMap(s.invites),
		inviteOwners: cloneMap(s.inviteOwners),
		referrals:    cloneMap(s.referrals),
		members:      cloneMap(s.members),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store: хранилище в памяти.
type Store struct {
	mu    sync.Mutex
	state *state
}

var _ db.Store = (*Store)(nil)

// New создаёт пустое хранилище с тарифами по умолчанию
// (basic, pro, ultra, как в миграциях PostgreSQL).
func New() *Store {
	st := newState()
	for _, p := range models.DefaultPlans() {
		st.plans[p.Code] = p
	}
	return &Store{state: st}
}

// InTx выполняет fn над копией состояния и публикует её при успехе.
// Транзакции выполняются строго по одной, поэтому конфликтов здесь не бывает,
// а ошибка fn просто отбрасывает копию.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{st: s.state.fork()}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = t.st
	return nil
}

// Close ничего не делает.
func (s *Store) Close() {}

// PutPlan добавляет или заменяет тариф. Только для тестов и сидирования.
func (s *Store) PutPlan(p *models.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.state.plans[p.Code] = &c
}

type tx struct {
	st *state
}

// --- Кошельки и журнал ---

func (t *tx) LockWallet(_ context.Context, userID int64, now time.Time) (*models.Wallet, error) {
	w, ok := t.st.wallets[userID]
	if !ok {
		w = models.NewWallet(userID, now)
		t.st.wallets[userID] = w
	}
	return w.Clone(), nil
}

func (t *tx) SaveWallet(_ context.Context, w *models.Wallet) error {
	cur, ok := t.st.wallets[w.UserID]
	if !ok {
		return common.ErrNotFound
	}
	if cur.Version != w.Version {
		return common.ErrConflict
	}
	w.Version++
	t.st.wallets[w.UserID] = w.Clone()
	return nil
}

func (t *tx) AppendEntry(_ context.Context, e *models.LedgerEntry) error {
	t.st.nextEntryID++
	e.ID = t.st.nextEntryID
	c := *e
	t.st.entries = append(t.st.entries, &c)
	return nil
}

func (t *tx) ExistsEntry(_ context.Context, q db.EntryQuery) (bool, error) {
	for _, e := range t.st.entries {
		if q.UserID != 0 && e.UserID != q.UserID {
			continue
		}
		if q.Reason != "" && e.Reason != q.Reason {
			continue
		}
		if q.MetaKey != "" {
			v, ok := models.MetadataField(e.Metadata, q.MetaKey)
			if !ok || v != q.MetaValue {
				continue
			}
		}
		return true, nil
	}
	return false, nil
}

func (t *tx) ListEntries(_ context.Context, userID int64, limit int) ([]*models.LedgerEntry, error) {
	var out []*models.LedgerEntry
	for i := len(t.st.entries) - 1; i >= 0; i-- {
		e := t.st.entries[i]
		if e.UserID != userID {
			continue
		}
		c := *e
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- Тарифы и подписки ---

func (t *tx) GetPlan(_ context.Context, code string) (*models.Plan, error) {
	p, ok := t.st.plans[code]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (t *tx) ListPlans(_ context.Context) ([]*models.Plan, error) {
	out := make([]*models.Plan, 0, len(t.st.plans))
	for _, p := range t.st.plans {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out, nil
}

func (t *tx) GetSubscription(_ context.Context, userID int64) (*models.Subscription, error) {
	s, ok := t.st.subs[userID]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (t *tx) SaveSubscription(_ context.Context, s *models.Subscription) error {
	c := *s
	t.st.subs[s.UserID] = &c
	return nil
}

func (t *tx) InsertPayment(_ context.Context, p *models.Payment) (bool, error) {
	if _, ok := t.st.payments[p.OrderNo]; ok {
		return false, nil
	}
	c := *p
	t.st.payments[p.OrderNo] = &c
	return true, nil
}

// --- Коды погашения ---

func (t *tx) InsertCode(_ context.Context, c *models.RedemptionCode) (bool, error) {
	if _, ok := t.st.codes[c.Code]; ok {
		return false, nil
	}
	cp := *c
	t.st.codes[c.Code] = &cp
	return true, nil
}

func (t *tx) GetCode(_ context.Context, code string) (*models.RedemptionCode, error) {
	c, ok := t.st.codes[code]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (t *tx) ClaimCode(_ context.Context, code string, userID int64, now time.Time) (bool, error) {
	c, ok := t.st.codes[code]
	if !ok || c.EffectiveStatus(now) != models.CodeActive {
		return false, nil
	}
	cp := *c
	cp.Status = models.CodeUsed
	cp.UsedBy = &userID
	cp.UsedAt = &now
	t.st.codes[code] = &cp
	return true, nil
}

func (t *tx) UpdateCodeStatus(_ context.Context, code string, from, to models.CodeStatus) (bool, error) {
	c, ok := t.st.codes[code]
	if !ok || c.Status != from {
		return false, nil
	}
	cp := *c
	cp.Status = to
	t.st.codes[code] = &cp
	return true, nil
}

func (t *tx) ListCodesByBatch(_ context.Context, batchID string) ([]*models.RedemptionCode, error) {
	var out []*models.RedemptionCode
	for _, c := range t.st.codes {
		if c.BatchID == batchID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (t *tx) ExpireCodes(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for code, c := range t.st.codes {
		if c.Status == models.CodeActive && c.EffectiveStatus(now) == models.CodeExpired {
			cp := *c
			cp.Status = models.CodeExpired
			t.st.codes[code] = &cp
			n++
		}
	}
	return n, nil
}

// --- Приглашения ---

func (t *tx) GetInviteCode(_ context.Context, userID int64) (*models.InviteCode, error) {
	ic, ok := t.st.invites[userID]
	if !ok {
		return nil, nil
	}
	c := *ic
	return &c, nil
}

func (t *tx) FindInviteCode(_ context.Context, code string) (*models.InviteCode, error) {
	owner, ok := t.st.inviteOwners[code]
	if !ok {
		return nil, nil
	}
	c := *t.st.invites[owner]
	return &c, nil
}

func (t *tx) SaveInviteCode(_ context.Context, ic *models.InviteCode) (bool, error) {
	if owner, ok := t.st.inviteOwners[ic.Code]; ok && owner != ic.UserID {
		return false, nil
	}
	if prev, ok := t.st.invites[ic.UserID]; ok {
		delete(t.st.inviteOwners, prev.Code)
	}
	c := *ic
	t.st.invites[ic.UserID] = &c
	t.st.inviteOwners[ic.Code] = ic.UserID
	return true, nil
}

func (t *tx) GetReferral(_ context.Context, inviteeID int64) (*models.Referral, error) {
	r, ok := t.st.referrals[inviteeID]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (t *tx) InsertReferral(_ context.Context, r *models.Referral) (bool, error) {
	if _, ok := t.st.referrals[r.InviteeID]; ok {
		return false, nil
	}
	c := *r
	t.st.referrals[r.InviteeID] = &c
	return true, nil
}

// --- Участники ---

func (t *tx) UpsertMember(_ context.Context, m *models.Member) (bool, error) {
	prev, exists := t.st.members[m.UserID]
	c := *m
	if exists {
		c.CreatedAt = prev.CreatedAt
	}
	t.st.members[m.UserID] = &c
	return !exists, nil
}

func (t *tx) GetMember(_ context.Context, userID int64) (*models.Member, error) {
	m, ok := t.st.members[userID]
	if !ok {
		return nil, nil
	}
	c := *m
	return &c, nil
}

func (t *tx) GetMemberByUsername(_ context.Context, username string) (*models.Member, error) {
	username = strings.TrimPrefix(username, "@")
	for _, m := range t.st.members {
		if strings.EqualFold(m.Username, username) {
			c := *m
			return &c, nil
		}
	}
	return nil, nil
}
