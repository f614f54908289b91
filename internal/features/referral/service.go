// Package referral ведёт коды приглашений и награды за приглашённых.
// Связь «пригласивший → приглашённый» задаётся один раз. Награда
// выдаётся обеим сторонам ровно один раз на приглашённого; повтор
// отсекается проверкой журнала под блокировкой кошелька приглашённого.
package referral

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/config"
	"serotonyl.ru/wallet-bot/internal/db"
	"serotonyl.ru/wallet-bot/internal/features/wallet"
	"serotonyl.ru/wallet-bot/internal/models"
)

const (
	inviteCodeLength   = 8
	inviteCodeAttempts = 20
)

var inviteCodePattern = regexp.MustCompile(`^[A-Z0-9]{4,16}$`)

// Service: приглашения и реферальные награды.
type Service struct {
	wallet         *wallet.Service
	store          db.Store
	inviterReward  int64
	inviteeReward  int64
	changeInterval time.Duration
}

// NewService создаёт реферальный сервис.
func NewService(w *wallet.Service, cfg *config.Config) *Service {
	return &Service{
		wallet:         w,
		store:          w.Store(),
		inviterReward:  cfg.ReferralInviterReward,
		inviteeReward:  cfg.ReferralInviteeReward,
		changeInterval: cfg.ReferralCodeChangeInterval,
	}
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	return common.Retry(ctx, s.wallet.Retries(), func() error {
		return s.store.InTx(ctx, fn)
	})
}

// EnsureUserInviteCode возвращает код пользователя, выдавая новый при первом обращении.
func (s *Service) EnsureUserInviteCode(ctx context.Context, userID int64) (*models.InviteCode, error) {
	var ic *models.InviteCode
	err := s.inTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		ic, err = tx.GetInviteCode(ctx, userID)
		if err != nil || ic != nil {
			return err
		}
		now := s.wallet.Now()
		for i := 0; i < inviteCodeAttempts; i++ {
			code, err := common.RandomString(inviteCodeLength, common.CodeCharset)
			if err != nil {
				return err
			}
			// ChangedAt в нулевом времени: первая смена кода доступна сразу
			candidate := &models.InviteCode{UserID: userID, Code: code, CreatedAt: now}
			ok, err := tx.SaveInviteCode(ctx, candidate)
			if err != nil {
				return err
			}
			if ok {
				ic = candidate
				return nil
			}
		}
		return common.ErrConflict
	})
	if err != nil {
		return nil, err
	}
	return ic, nil
}

// CanChangeInviteCode: прошло ли достаточно времени с последней смены кода.
func CanChangeInviteCode(ic *models.InviteCode, now time.Time, interval time.Duration) bool {
	if ic == nil || ic.ChangedAt.IsZero() {
		return true
	}
	return !now.Before(ic.ChangedAt.Add(interval))
}

// ChangeInviteCode задаёт пользователю свой код приглашения.
func (s *Service) ChangeInviteCode(ctx context.Context, userID int64, raw string) (*models.InviteCode, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if !inviteCodePattern.MatchString(code) {
		return nil, common.Validation("код должен состоять из 4–16 латинских букв и цифр")
	}

	var ic *models.InviteCode
	err := s.inTx(ctx, func(ctx context.Context, tx db.Tx) error {
		now := s.wallet.Now()
		cur, err := tx.GetInviteCode(ctx, userID)
		if err != nil {
			return err
		}
		if cur != nil && cur.Code == code {
			ic = cur
			return nil
		}
		if !CanChangeInviteCode(cur, now, s.changeInterval) {
			return common.ErrLimitReached
		}
		next := &models.InviteCode{UserID: userID, Code: code, ChangedAt: now, CreatedAt: now}
		if cur != nil {
			next.CreatedAt = cur.CreatedAt
		}
		ok, err := tx.SaveInviteCode(ctx, next)
		if err != nil {
			return err
		}
		if !ok {
			return common.Validation("код %s уже занят", code)
		}
		ic = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"code":    code,
	}).Info("Код приглашения изменён")
	return ic, nil
}

// AttachReferralByCode связывает пользователя с владельцем кода.
// Возвращает false без ошибки, если пригласивший уже есть,
// код свой собственный или связь замкнула бы цикл.
func (s *Service) AttachReferralByCode(ctx context.Context, userID int64, raw string) (bool, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return false, common.Validation("пустой код приглашения")
	}

	attached := false
	err := s.inTx(ctx, func(ctx context.Context, tx db.Tx) error {
		attached = false
		owner, err := tx.FindInviteCode(ctx, code)
		if err != nil {
			return err
		}
		if owner == nil {
			return common.ErrNotFound
		}
		if owner.UserID == userID {
			return nil
		}
		if existing, err := tx.GetReferral(ctx, userID); err != nil || existing != nil {
			return err
		}
		// Прямой цикл: пригласивший сам приглашён этим пользователем
		if back, err := tx.GetReferral(ctx, owner.UserID); err != nil {
			return err
		} else if back != nil && back.InviterID == userID {
			return nil
		}
		attached, err = tx.InsertReferral(ctx, &models.Referral{
			InviteeID: userID,
			InviterID: owner.UserID,
			CreatedAt: s.wallet.Now(),
		})
		return err
	})
	if err != nil {
		return false, err
	}

	if attached {
		log.WithFields(log.Fields{
			"invitee_id": userID,
			"code":       code,
		}).Info("Пользователь привязан к пригласившему")
	}
	return attached, nil
}

// Inviter возвращает ID пригласившего или 0.
func (s *Service) Inviter(ctx context.Context, userID int64) (int64, error) {
	var inviter int64
	err := s.store.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		ref, err := tx.GetReferral(ctx, userID)
		if err != nil || ref == nil {
			return err
		}
		inviter = ref.InviterID
		return nil
	})
	return inviter, err
}

// IssueReward начисляет награды приглашённому и пригласившему.
// Повторный вызов для того же приглашённого ничего не делает и возвращает false.
func (s *Service) IssueReward(ctx context.Context, inviteeID int64, orderNo string) (bool, error) {
	rewarded := false
	var inviterID int64
	_, err := s.wallet.Update(ctx, inviteeID, func(op *wallet.Op) error {
		rewarded = false
		ref, err := op.Tx.GetReferral(op.Context(), inviteeID)
		if err != nil || ref == nil {
			return err
		}
		done, err := op.Tx.ExistsEntry(op.Context(), db.EntryQuery{
			Reason:    models.ReasonReferralReward,
			MetaKey:   "invitee_id",
			MetaValue: strconv.FormatInt(inviteeID, 10),
		})
		if err != nil || done {
			return err
		}

		inviterID = ref.InviterID
		inviter, err := op.Join(inviterID)
		if err != nil {
			return err
		}
		meta := models.ReferralRewardMetadata{InviteeID: inviteeID, InviterID: inviterID, OrderNo: orderNo}

		meta.Role = models.RoleInvitee
		if _, err := op.Apply(wallet.Deltas{Independent: s.inviteeReward}, wallet.ModeStrict, meta); err != nil {
			return err
		}
		meta.Role = models.RoleInviter
		if _, err := op.ApplyTo(inviter, wallet.Deltas{Independent: s.inviterReward}, wallet.ModeStrict, meta); err != nil {
			return err
		}
		rewarded = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if rewarded {
		log.WithFields(log.Fields{
			"invitee_id": inviteeID,
			"inviter_id": inviterID,
			"order_no":   orderNo,
		}).Info("Реферальная награда начислена")
	}
	return rewarded, nil
}
