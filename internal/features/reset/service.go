// Package reset реализует ручной сброс: пакетные токены сразу доливаются
// до лимита тарифа, не чаще manual_reset_per_day раз за UTC-сутки.
package reset

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/features/wallet"
	"serotonyl.ru/wallet-bot/internal/models"
)

// Result: итог ручного сброса.
type Result struct {
	Balance              *wallet.Balance
	ResetsRemainingToday int
	// NextAvailableAt: ближайшая полночь UTC, когда квота обновится.
	NextAvailableAt time.Time
	Entry           *models.LedgerEntry
}

// Service: ручной сброс.
type Service struct {
	wallet *wallet.Service
}

// NewService создаёт сервис ручного сброса.
func NewService(w *wallet.Service) *Service {
	return &Service{wallet: w}
}

// ManualResetCredits выставляет пакетные токены ровно в лимит тарифа.
// Остаток сверх лимита (например, от прошлого тарифа) при этом списывается.
// Запись журнала пишется даже при нулевом изменении: попытка засчитывается в квоту.
func (s *Service) ManualResetCredits(ctx context.Context, userID int64) (*Result, error) {
	var entry *models.LedgerEntry
	out, err := s.wallet.Update(ctx, userID, func(op *wallet.Op) error {
		if !op.Limits.HasPlan() {
			return common.ErrNoActivePackage
		}
		w := op.Wallet
		used := wallet.EffectiveManualResets(w, op.Now)
		if used >= op.Limits.ManualResetPerDay {
			return common.ErrLimitReached
		}

		refill := op.Limits.CreditCap - w.PackageTokensRemaining
		var err error
		entry, err = op.Apply(wallet.Deltas{Package: refill}, wallet.ModeStrict, models.ManualResetMetadata{
			ResetsUsedToday: used + 1,
			PlanCode:        op.Limits.PlanCode,
		})
		if err != nil {
			return err
		}
		w.ManualResetCount = used + 1
		w.ManualResetAt = op.Now
		return nil
	})
	if err != nil {
		return nil, err
	}

	b := out.Balance()
	log.WithFields(log.Fields{
		"user_id":   userID,
		"refill":    entry.Amount,
		"remaining": b.ResetsRemainingToday,
	}).Info("Ручной сброс токенов")
	return &Result{
		Balance:              b,
		ResetsRemainingToday: b.ResetsRemainingToday,
		NextAvailableAt:      common.NextUTCMidnight(out.Now),
		Entry:                entry,
	}, nil
}
