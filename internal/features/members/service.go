// Package members хранит пользователей, которые писали боту.
// Первая регистрация участника приносит приветственный бонус.
package members

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/db"
	"serotonyl.ru/wallet-bot/internal/features/bonus"
	"serotonyl.ru/wallet-bot/internal/features/wallet"
	"serotonyl.ru/wallet-bot/internal/models"
)

// BonusSource: источник регистрации для приветственного бонуса.
const BonusSource = "telegram"

// Service управляет участниками.
type Service struct {
	store  db.Store
	wallet *wallet.Service
	bonus  *bonus.Service
}

// NewService создаёт сервис участников. bonus может быть nil.
func NewService(w *wallet.Service, b *bonus.Service) *Service {
	return &Service{store: w.Store(), wallet: w, bonus: b}
}

// EnsureMember создаёт участника или обновляет его имя и username.
// Возвращает true, если участник новый.
func (s *Service) EnsureMember(ctx context.Context, m *models.Member) (bool, error) {
	if m.UserID <= 0 {
		return false, common.Validation("некорректный user_id %d", m.UserID)
	}
	m.Username = strings.TrimPrefix(strings.TrimSpace(m.Username), "@")
	now := s.wallet.Now()
	m.CreatedAt, m.UpdatedAt = now, now

	var created bool
	err := common.Retry(ctx, s.wallet.Retries(), func() error {
		return s.store.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
			var err error
			created, err = tx.UpsertMember(ctx, m)
			return err
		})
	})
	if err != nil {
		return false, fmt.Errorf("ошибка регистрации участника: %w", err)
	}
	if created {
		log.WithFields(log.Fields{
			"user_id":  m.UserID,
			"username": m.Username,
		}).Info("Новый участник зарегистрирован")
	}
	return created, nil
}

// Register регистрирует участника и начисляет бонус новичку.
// Бонус идемпотентен, так что сбой между шагами исправит следующий /start.
func (s *Service) Register(ctx context.Context, m *models.Member) (created, granted bool, err error) {
	created, err = s.EnsureMember(ctx, m)
	if err != nil {
		return false, false, err
	}
	if s.bonus == nil {
		return created, false, nil
	}
	granted, err = s.bonus.GrantNewUserBonus(ctx, m.UserID, BonusSource, "")
	if err != nil {
		return created, false, err
	}
	return created, granted, nil
}

// Get возвращает участника по Telegram ID или ErrNotFound.
func (s *Service) Get(ctx context.Context, userID int64) (*models.Member, error) {
	return s.find(ctx, func(ctx context.Context, tx db.Tx) (*models.Member, error) {
		return tx.GetMember(ctx, userID)
	})
}

// GetByUsername ищет участника по @username без учёта регистра.
func (s *Service) GetByUsername(ctx context.Context, username string) (*models.Member, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, common.Validation("пустой username")
	}
	return s.find(ctx, func(ctx context.Context, tx db.Tx) (*models.Member, error) {
		return tx.GetMemberByUsername(ctx, username)
	})
}

func (s *Service) find(ctx context.Context, get func(ctx context.Context, tx db.Tx) (*models.Member, error)) (*models.Member, error) {
	var m *models.Member
	err := s.store.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		m, err = get(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, common.ErrNotFound
	}
	return m, nil
}
