// Package redemption выпускает и гасит одноразовые коды на токены и тарифы.
// Код гасится условным переводом active → used внутри транзакции
// кошелька, поэтому из двух параллельных попыток проходит одна.
package redemption

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/config"
	"serotonyl.ru/wallet-bot/internal/db"
	"serotonyl.ru/wallet-bot/internal/features/subscription"
	"serotonyl.ru/wallet-bot/internal/features/wallet"
	"serotonyl.ru/wallet-bot/internal/models"
)

// attemptsPerCode: сколько попыток даётся на каждый код партии
// при совпадениях с уже существующими.
const attemptsPerCode = 20

// GenerateRequest: параметры партии кодов.
type GenerateRequest struct {
	Prefix    string          `json:"prefix"`
	Quantity  int             `json:"quantity"`
	CodeType  models.CodeType `json:"code_type"`
	CodeValue string          `json:"code_value"`
	ValidDays int             `json:"valid_days"`
	Notes     string          `json:"notes"`
	ExpiresAt *time.Time      `json:"expires_at"`
	CreatedBy int64           `json:"-"`
}

// Batch: созданная партия.
type Batch struct {
	BatchID string   `json:"batch_id"`
	Codes   []string `json:"codes"`
}

// Result: итог погашения кода.
type Result struct {
	Code         string               `json:"code"`
	Type         models.CodeType      `json:"code_type"`
	Credits      int64                `json:"credits,omitempty"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
	Balance      *wallet.Balance      `json:"balance"`
}

// Service: реестр кодов погашения.
type Service struct {
	wallet   *wallet.Service
	store    db.Store
	segments int
	maxBatch int
}

// NewService создаёт сервис кодов.
func NewService(w *wallet.Service, cfg *config.Config) *Service {
	return &Service{
		wallet:   w,
		store:    w.Store(),
		segments: cfg.RedemptionSegments,
		maxBatch: cfg.RedemptionMaxBatch,
	}
}

func (s *Service) validate(ctx context.Context, req *GenerateRequest) error {
	req.Prefix = strings.ToUpper(strings.TrimSpace(req.Prefix))
	req.CodeValue = strings.TrimSpace(req.CodeValue)
	if !prefixPattern.MatchString(req.Prefix) {
		return common.Validation("префикс должен состоять из 1–16 латинских букв и цифр")
	}
	if req.Quantity < 1 || req.Quantity > s.maxBatch {
		return common.Validation("количество кодов должно быть от 1 до %d", s.maxBatch)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.wallet.Now()) {
		return common.Validation("срок действия кода уже истёк")
	}

	switch req.CodeType {
	case models.CodeTypeCredits:
		n, err := strconv.ParseInt(req.CodeValue, 10, 64)
		if err != nil || n <= 0 {
			return common.Validation("для кода на токены нужна положительная сумма")
		}
		req.ValidDays = 0
	case models.CodeTypePlan:
		req.CodeValue = strings.ToLower(req.CodeValue)
		if req.ValidDays <= 0 {
			return common.Validation("для кода на тариф нужен срок в днях")
		}
		var plan *models.Plan
		err := s.store.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
			var err error
			plan, err = tx.GetPlan(ctx, req.CodeValue)
			return err
		})
		if err != nil {
			return err
		}
		if plan == nil {
			return common.Validation("тариф %q не найден", req.CodeValue)
		}
	default:
		return common.Validation("неизвестный тип кода %q", req.CodeType)
	}
	return nil
}

// GenerateBatch создаёт партию кодов с общим batch_id.
// Совпавшие коды пропускаются; ошибка только если не создано ни одного.
//
// Параметры:
//   - ctx: контекст
//   - req: префикс (до 16 символов A-Z0-9), количество, тип и значение,
//     необязательный срок действия
func (s *Service) GenerateBatch(ctx context.Context, req GenerateRequest) (*Batch, error) {
	if err := s.validate(ctx, &req); err != nil {
		return nil, err
	}

	batch := &Batch{BatchID: uuid.NewString()}
	err := s.store.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		batch.Codes = batch.Codes[:0]
		now := s.wallet.Now()
		for attempt := 0; attempt < req.Quantity*attemptsPerCode && len(batch.Codes) < req.Quantity; attempt++ {
			code, err := GenerateCode(req.Prefix, s.segments)
			if err != nil {
				return err
			}
			ok, err := tx.InsertCode(ctx, &models.RedemptionCode{
				Code:      code,
				BatchID:   batch.BatchID,
				Type:      req.CodeType,
				Value:     req.CodeValue,
				ValidDays: req.ValidDays,
				Status:    models.CodeActive,
				ExpiresAt: req.ExpiresAt,
				CreatedBy: req.CreatedBy,
				Notes:     req.Notes,
				CreatedAt: now,
			})
			if err != nil {
				return err
			}
			if ok {
				batch.Codes = append(batch.Codes, code)
			}
		}
		if len(batch.Codes) == 0 {
			return fmt.Errorf("не удалось создать ни одного кода: %w", common.ErrConflict)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := log.Fields{
		"batch_id":   batch.BatchID,
		"admin_id":   req.CreatedBy,
		"code_type":  req.CodeType,
		"code_value": req.CodeValue,
		"requested":  req.Quantity,
		"created":    len(batch.Codes),
	}
	if len(batch.Codes) < req.Quantity {
		log.WithFields(fields).Warn("Партия кодов создана не полностью")
	} else {
		log.WithFields(fields).Info("Партия кодов создана")
	}
	return batch, nil
}

// Redeem гасит код пользователем userID.
func (s *Service) Redeem(ctx context.Context, userID int64, raw string) (*Result, error) {
	code := models.NormalizeCode(raw)
	if !models.ValidCodeFormat(code) {
		return nil, common.ErrCodeNotFound
	}

	res := &Result{Code: code}
	out, err := s.wallet.Update(ctx, userID, func(op *wallet.Op) error {
		res.Credits = 0
		res.Subscription = nil

		c, err := op.Tx.GetCode(op.Context(), code)
		if err != nil {
			return err
		}
		if c == nil {
			return common.ErrCodeNotFound
		}
		switch c.EffectiveStatus(op.Now) {
		case models.CodeActive:
		case models.CodeUsed:
			return common.ErrCodeAlreadyUsed
		case models.CodeExpired:
			return common.ErrCodeExpired
		default:
			return common.ErrCodeNotActive
		}
		res.Type = c.Type

		var plan *models.Plan
		switch c.Type {
		case models.CodeTypePlan:
			plan, err = op.Tx.GetPlan(op.Context(), c.Value)
			if err != nil {
				return err
			}
			if plan == nil {
				return fmt.Errorf("тариф %q из кода %s: %w", c.Value, code, common.ErrNotFound)
			}
			// Понижение проверяем до захвата, чтобы код остался активным
			if op.Limits.HasPlan() && plan.Tier < op.Limits.Tier {
				return common.ErrDowngradeNotAllowed
			}
		case models.CodeTypeCredits:
			res.Credits, err = c.Credits()
			if err != nil || res.Credits <= 0 {
				return fmt.Errorf("код %s: некорректная сумма %q", code, c.Value)
			}
		default:
			return fmt.Errorf("код %s: неизвестный тип %q", code, c.Type)
		}

		claimed, err := op.Tx.ClaimCode(op.Context(), code, userID, op.Now)
		if err != nil {
			return err
		}
		if !claimed {
			return common.ErrCodeAlreadyUsed
		}

		if plan != nil {
			res.Subscription, err = subscription.Activate(op, plan, c.ValidDays, subscription.SourceRedemption, "")
			return err
		}
		_, err = op.Apply(wallet.Deltas{Independent: res.Credits}, wallet.ModeStrict, models.RedemptionMetadata{
			Code:     code,
			BatchID:  c.BatchID,
			CodeType: c.Type,
		})
		return err
	})
	if err != nil {
		log.WithFields(log.Fields{
			"user_id": userID,
			"code":    code,
			"result":  common.CodeOf(err),
		}).Info("Код не погашен")
		return nil, err
	}

	res.Balance = out.Balance()
	log.WithFields(log.Fields{
		"user_id":   userID,
		"code":      code,
		"code_type": res.Type,
		"credits":   res.Credits,
	}).Info("Код погашен")
	return res, nil
}

// SetCodeStatus меняет статус кода администратором.
// Разрешена только отмена активного кода; повторная отмена ничего не делает.
func (s *Service) SetCodeStatus(ctx context.Context, raw string, status models.CodeStatus) (*models.RedemptionCode, error) {
	if status != models.CodeCancelled {
		return nil, common.Validation("код можно только отменить")
	}
	code := models.NormalizeCode(raw)

	var c *models.RedemptionCode
	err := common.Retry(ctx, s.wallet.Retries(), func() error {
		return s.store.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
			var err error
			c, err = tx.GetCode(ctx, code)
			if err != nil {
				return err
			}
			if c == nil {
				return common.ErrCodeNotFound
			}
			if c.Status == models.CodeCancelled {
				return nil
			}
			ok, err := tx.UpdateCodeStatus(ctx, code, models.CodeActive, models.CodeCancelled)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("код в статусе %s: %w", c.Status, common.ErrCodeNotActive)
			}
			c.Status = models.CodeCancelled
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.WithField("code", code).Info("Код отменён")
	return c, nil
}

// ListBatch возвращает коды партии.
func (s *Service) ListBatch(ctx context.Context, batchID string) ([]*models.RedemptionCode, error) {
	if _, err := uuid.Parse(batchID); err != nil {
		return nil, common.Validation("некорректный batch_id")
	}
	var codes []*models.RedemptionCode
	err := s.store.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		codes, err = tx.ListCodesByBatch(ctx, batchID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, common.ErrNotFound
	}
	return codes, nil
}

// ExpireSweep записывает статус expired просроченным кодам.
// Погашение смотрит на срок само, так что это только для отчётов.
func (s *Service) ExpireSweep(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		n, err = tx.ExpireCodes(ctx, s.wallet.Now())
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.WithField("count", n).Info("Просроченные коды помечены")
	}
	return n, nil
}
