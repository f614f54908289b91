// Package usage списывает токены за использование сервисов.
// Списание идёт сначала из пакетных токенов, остаток из независимых,
// и либо проходит целиком, либо не меняет ничего.
package usage

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/features/wallet"
	"serotonyl.ru/wallet-bot/internal/models"
)

// Request: параметры списания.
type Request struct {
	Amount    int64
	Service   string
	RequestID string
	Note      string
}

// Result: баланс после списания и запись журнала.
type Result struct {
	Balance *wallet.Balance
	Entry   *models.LedgerEntry
}

// Service: списание токенов.
type Service struct {
	wallet *wallet.Service
}

// NewService создаёт сервис списаний.
func NewService(w *wallet.Service) *Service {
	return &Service{wallet: w}
}

// UseCredits списывает amount токенов и засчитывает одно использование.
// Сначала тратятся пакетные токены, остаток берётся из независимых.
//
// Параметры:
//   - ctx: контекст
//   - userID: Telegram user ID
//   - req: сумма, сервис и необязательный request_id
//
// Возвращает ErrInsufficientCredits, если токенов не хватает,
// и ErrDailyLimitExceeded, если дневной лимит использований исчерпан.
func (s *Service) UseCredits(ctx context.Context, userID int64, req Request) (*Result, error) {
	if req.Amount <= 0 {
		return nil, common.Validation("сумма списания должна быть положительной")
	}
	service := strings.TrimSpace(req.Service)
	if service == "" {
		return nil, common.Validation("не указан сервис")
	}

	var entry *models.LedgerEntry
	out, err := s.wallet.Update(ctx, userID, func(op *wallet.Op) error {
		w := op.Wallet
		used := wallet.EffectiveDailyUsage(w, op.Now)
		if used+1 > op.Limits.DailyUsageLimit {
			return common.ErrDailyLimitExceeded
		}

		d, err := wallet.PlanSpend(w.PackageTokensRemaining, w.IndependentTokens, req.Amount)
		if err != nil {
			return err
		}
		entry, err = op.Apply(d, wallet.ModeStrict, models.UsageMetadata{
			Service:   service,
			RequestID: req.RequestID,
			Note:      req.Note,
		})
		if err != nil {
			return err
		}

		w.DailyUsageCount = used + 1
		w.DailyUsageResetAt = op.Now
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  req.Amount,
		"service": service,
		"bucket":  entry.Bucket,
	}).Debug("Списание за использование")
	return &Result{Balance: out.Balance(), Entry: entry}, nil
}
