package wallet

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/models"
)

// Действия административной корректировки
const (
	AdjustAdd    = "add"
	AdjustDeduct = "deduct"
	AdjustSet    = "set"

	adjustSubtract = "subtract" // синоним deduct
)

// AdjustRequest: корректировка независимых токенов администратором.
type AdjustRequest struct {
	AdminID int64
	UserID  int64
	Action  string
	Amount  int64
	Comment string
}

// AdminAdjust меняет независимые токены пользователя.
// add и deduct строгие, set обрезает результат до нуля.
// Проверка прав: на стороне вызывающего.
func (s *Service) AdminAdjust(ctx context.Context, req AdjustRequest) (*Outcome, error) {
	action := strings.ToLower(strings.TrimSpace(req.Action))
	if action == adjustSubtract {
		action = AdjustDeduct
	}
	switch action {
	case AdjustAdd, AdjustDeduct:
		if req.Amount <= 0 {
			return nil, common.Validation("сумма должна быть положительной")
		}
	case AdjustSet:
		if req.Amount < 0 {
			return nil, common.Validation("нельзя установить отрицательный баланс")
		}
	default:
		return nil, common.Validation("неизвестное действие %q", req.Action)
	}

	meta := models.AdminAdjustMetadata{AdminID: req.AdminID, Action: action, Comment: req.Comment}
	out, err := s.Update(ctx, req.UserID, func(op *Op) error {
		var (
			d    Deltas
			mode = ModeStrict
		)
		switch action {
		case AdjustAdd:
			d.Independent = req.Amount
		case AdjustDeduct:
			d.Independent = -req.Amount
		case AdjustSet:
			d.Independent = req.Amount - op.Wallet.IndependentTokens
			mode = ModeClamp
		}
		_, err := op.Apply(d, mode, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"admin_id": req.AdminID,
		"user_id":  req.UserID,
		"action":   action,
		"amount":   req.Amount,
	}).Info("Администратор изменил баланс")
	return out, nil
}
