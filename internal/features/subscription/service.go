// Package subscription управляет тарифами пользователя и событиями об оплате.
// Тариф включается только внутри транзакции кошелька: смена тарифа,
// долив пакетных токенов и сдвиг часов восстановления фиксируются вместе.
package subscription

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/config"
	"serotonyl.ru/wallet-bot/internal/db"
	"serotonyl.ru/wallet-bot/internal/features/referral"
	"serotonyl.ru/wallet-bot/internal/features/wallet"
	"serotonyl.ru/wallet-bot/internal/models"
)

// Источники включения тарифа
const (
	SourcePayment    = "payment"
	SourceRedemption = "redemption"
	SourceAdmin      = "admin"
)

// PaymentEvent: уведомление платёжного шлюза об успешной оплате.
type PaymentEvent struct {
	OrderNo  string `json:"order_no"`
	Amount   int64  `json:"amount"`
	PayerID  int64  `json:"payer_id"`
	PlanCode string `json:"plan_code"`
	Days     int    `json:"days"`
}

// PaymentOutcome: итог обработки платежа.
type PaymentOutcome struct {
	// Duplicate: платёж с этим номером уже обрабатывался.
	Duplicate        bool                 `json:"duplicate"`
	Subscription     *models.Subscription `json:"subscription,omitempty"`
	ReferralRewarded bool                 `json:"referral_rewarded"`
}

// Service: подписки и оплаты.
type Service struct {
	wallet      *wallet.Service
	referral    *referral.Service
	defaultDays int
}

// NewService создаёт сервис подписок.
func NewService(w *wallet.Service, ref *referral.Service, cfg *config.Config) *Service {
	return &Service{wallet: w, referral: ref, defaultDays: cfg.PlanDefaultDays}
}

// Activate включает или продлевает тариф основного кошелька операции.
//
// Тариф ниже действующего: ErrDowngradeNotAllowed. Тот же тариф
// продлевается от текущей даты окончания, любой другой начинается заново.
// Пакетные токены выставляются ровно в лимит нового тарифа (излишек
// сверх лимита списывается), часы восстановления
// запускаются с текущего момента.
func Activate(op *wallet.Op, plan *models.Plan, days int, source, orderNo string) (*models.Subscription, error) {
	if plan == nil {
		return nil, common.ErrNotFound
	}
	if days <= 0 {
		return nil, common.Validation("срок тарифа должен быть положительным, получено %d", days)
	}
	if op.Limits.HasPlan() && plan.Tier < op.Limits.Tier {
		return nil, common.ErrDowngradeNotAllowed
	}

	ctx := op.Context()
	userID := op.Wallet.UserID
	cur, err := op.Tx.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	period := time.Duration(days) * 24 * time.Hour
	sub := &models.Subscription{
		UserID:    userID,
		PlanCode:  plan.Code,
		Status:    models.SubscriptionActive,
		StartedAt: op.Now,
		ExpiresAt: op.Now.Add(period),
		Source:    source,
		UpdatedAt: op.Now,
	}
	if cur.ActiveAt(op.Now) && cur.PlanCode == plan.Code {
		sub.StartedAt = cur.StartedAt
		sub.ExpiresAt = cur.ExpiresAt.Add(period)
	}
	if err := op.Tx.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	if err := op.RefreshLimits(); err != nil {
		return nil, err
	}

	w := op.Wallet
	if refill := op.Limits.CreditCap - w.PackageTokensRemaining; refill != 0 {
		_, err := op.Apply(wallet.Deltas{Package: refill}, wallet.ModeStrict, models.PackageRenewalMetadata{
			PlanCode: plan.Code,
			Kind:     models.RenewalActivation,
			Source:   source,
			OrderNo:  orderNo,
		})
		if err != nil {
			return nil, err
		}
	}
	w.LastRecoveryAt = op.Now

	log.WithFields(log.Fields{
		"user_id":    userID,
		"plan_code":  plan.Code,
		"source":     source,
		"expires_at": sub.ExpiresAt,
	}).Info("Тариф активирован")
	return sub, nil
}

// ActivatePlan включает тариф вне другой операции (админка).
func (s *Service) ActivatePlan(ctx context.Context, userID int64, planCode string, days int, source string) (*models.Subscription, error) {
	if days <= 0 {
		days = s.defaultDays
	}
	var sub *models.Subscription
	_, err := s.wallet.Update(ctx, userID, func(op *wallet.Op) error {
		plan, err := op.Tx.GetPlan(op.Context(), planCode)
		if err != nil {
			return err
		}
		if plan == nil {
			return fmt.Errorf("тариф %q: %w", planCode, common.ErrNotFound)
		}
		sub, err = Activate(op, plan, days, source, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// HandlePaymentSettled обрабатывает оплату. Повторная доставка того же
// номера заказа не меняет баланс, но награду пригласившему проверяет снова:
// первая доставка могла упасть между оплатой и наградой.
func (s *Service) HandlePaymentSettled(ctx context.Context, evt PaymentEvent) (*PaymentOutcome, error) {
	evt.OrderNo = strings.TrimSpace(evt.OrderNo)
	if evt.OrderNo == "" {
		return nil, common.Validation("не указан номер заказа")
	}
	if evt.PayerID <= 0 {
		return nil, common.Validation("некорректный payer_id %d", evt.PayerID)
	}
	if evt.Amount < 0 {
		return nil, common.Validation("отрицательная сумма платежа")
	}
	days := evt.Days
	if days <= 0 {
		days = s.defaultDays
	}

	res := &PaymentOutcome{}
	_, err := s.wallet.Update(ctx, evt.PayerID, func(op *wallet.Op) error {
		res.Duplicate = false
		res.Subscription = nil

		fresh, err := op.Tx.InsertPayment(op.Context(), &models.Payment{
			OrderNo:     evt.OrderNo,
			UserID:      evt.PayerID,
			AmountMinor: evt.Amount,
			PlanCode:    evt.PlanCode,
			ProcessedAt: op.Now,
		})
		if err != nil {
			return err
		}
		if !fresh {
			res.Duplicate = true
			return nil
		}
		if evt.PlanCode == "" {
			return nil
		}
		plan, err := op.Tx.GetPlan(op.Context(), evt.PlanCode)
		if err != nil {
			return err
		}
		if plan == nil {
			return fmt.Errorf("тариф %q: %w", evt.PlanCode, common.ErrNotFound)
		}
		res.Subscription, err = Activate(op, plan, days, SourcePayment, evt.OrderNo)
		return err
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"order_no": evt.OrderNo,
			"payer_id": evt.PayerID,
		}).Warn("Платёж не обработан")
		return nil, err
	}

	if res.Duplicate {
		log.WithField("order_no", evt.OrderNo).Info("Повторное уведомление об оплате")
	}

	if s.referral != nil {
		rewarded, err := s.referral.IssueReward(ctx, evt.PayerID, evt.OrderNo)
		if err != nil {
			// Оплата уже зафиксирована, награду выдаст повторная доставка
			return res, fmt.Errorf("реферальная награда: %w", err)
		}
		res.ReferralRewarded = rewarded
	}
	return res, nil
}

// Plans: каталог тарифов по возрастанию уровня.
func (s *Service) Plans(ctx context.Context) ([]*models.Plan, error) {
	var plans []*models.Plan
	err := s.wallet.Store().InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		plans, err = tx.ListPlans(ctx)
		return err
	})
	return plans, err
}

// Current: действующая подписка пользователя или nil.
func (s *Service) Current(ctx context.Context, userID int64) (*models.Subscription, error) {
	var sub *models.Subscription
	now := s.wallet.Now()
	err := s.wallet.Store().InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		cur, err := tx.GetSubscription(ctx, userID)
		if err != nil {
			return err
		}
		if cur.ActiveAt(now) {
			sub = cur
		}
		return nil
	})
	return sub, err
}
