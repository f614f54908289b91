// Package bonus выдаёт приветственный бонус новому пользователю.
// Можно вызывать из любого пути регистрации: повторный вызов
// видит запись журнала и ничего не начисляет.
package bonus

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/config"
	"serotonyl.ru/wallet-bot/internal/db"
	"serotonyl.ru/wallet-bot/internal/features/wallet"
	"serotonyl.ru/wallet-bot/internal/models"
)

// Service: выдача приветственного бонуса.
type Service struct {
	wallet *wallet.Service
	amount int64
}

// NewService создаёт сервис бонусов.
func NewService(w *wallet.Service, cfg *config.Config) *Service {
	return &Service{wallet: w, amount: cfg.WalletNewUserBonus}
}

// GrantNewUserBonus начисляет бонус, если его ещё не было.
// Возвращает true, если бонус начислен этим вызовом.
func (s *Service) GrantNewUserBonus(ctx context.Context, userID int64, source, provider string) (bool, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return false, common.Validation("не указан источник регистрации")
	}
	if s.amount <= 0 {
		return false, nil
	}

	granted := false
	_, err := s.wallet.Update(ctx, userID, func(op *wallet.Op) error {
		granted = false
		exists, err := op.Tx.ExistsEntry(op.Context(), db.EntryQuery{
			UserID: userID,
			Reason: models.ReasonNewUserBonus,
		})
		if err != nil || exists {
			return err
		}
		_, err = op.Apply(wallet.Deltas{Independent: s.amount}, wallet.ModeStrict, models.NewUserBonusMetadata{
			Source:   source,
			Provider: provider,
		})
		if err != nil {
			return err
		}
		granted = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if granted {
		log.WithFields(log.Fields{
			"user_id":  userID,
			"amount":   s.amount,
			"source":   source,
			"provider": provider,
		}).Info("Приветственный бонус начислен")
	}
	return granted, nil
}
