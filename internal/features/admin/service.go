// Package admin реализует вход администраторов по паролю и их сессии.
// Администратором может быть только пользователь из ADMIN_IDS;
// пароль проверяется по хешу Argon2id, попытки входа ограничены.
package admin

import (
	"context"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/common"
	"serotonyl.ru/wallet-bot/internal/config"
	"serotonyl.ru/wallet-bot/internal/ratelimit"
)

// Session описывает активную сессию администратора. Живёт в памяти процесса:
// после перезапуска нужно войти заново.
type Session struct {
	UserID          int64
	Token           string
	AuthenticatedAt time.Time
	ExpiresAt       time.Time
	LastActivity    time.Time
}

// Service управляет входом и сессиями.
type Service struct {
	cfg     *config.Config
	limiter ratelimit.Limiter
	now     func() time.Time

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewService создаёт сервис. limiter ограничивает попытки входа на пользователя.
func NewService(cfg *config.Config, limiter ratelimit.Limiter) *Service {
	return &Service{
		cfg:      cfg,
		limiter:  limiter,
		now:      time.Now,
		sessions: make(map[int64]*Session),
	}
}

// SetClock подменяет часы.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// IsAdmin: входит ли пользователь в ADMIN_IDS.
func (s *Service) IsAdmin(userID int64) bool {
	return s.cfg.IsAdmin(userID)
}

// Login проверяет пароль и открывает сессию.
func (s *Service) Login(ctx context.Context, userID int64, password string) (*Session, error) {
	if !s.IsAdmin(userID) || s.cfg.AdminPasswordHash == "" {
		return nil, common.ErrForbidden
	}
	ok, err := s.limiter.Allow(ctx, "login:"+strconv.FormatInt(userID, 10))
	if err != nil {
		return nil, err
	}
	if !ok {
		log.WithField("user_id", userID).Warn("Превышен лимит попыток входа администратора")
		return nil, common.ErrLimitReached
	}
	if !verifyArgon2id(password, s.cfg.AdminPasswordHash) {
		log.WithField("user_id", userID).Warn("Неверный пароль администратора")
		return nil, common.ErrUnauthorized
	}

	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	now := s.now()
	sess := &Session{
		UserID:          userID,
		Token:           token,
		AuthenticatedAt: now,
		ExpiresAt:       now.Add(s.cfg.AdminSessionTTL),
		LastActivity:    now,
	}
	s.sessions[userID] = sess
	s.mu.Unlock()

	log.WithField("user_id", userID).Info("Администратор вошёл")
	c := *sess
	return &c, nil
}

// HasActiveSession проверяет сессию и отмечает активность.
func (s *Service) HasActiveSession(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	now := s.now()
	if !now.Before(sess.ExpiresAt) {
		delete(s.sessions, userID)
		return false
	}
	sess.LastActivity = now
	return true
}

// Authorize: может ли пользователь выполнять админ-команды прямо сейчас.
func (s *Service) Authorize(userID int64) error {
	if !s.IsAdmin(userID) {
		return common.ErrForbidden
	}
	if !s.HasActiveSession(userID) {
		return common.ErrUnauthorized
	}
	return nil
}

// Logout закрывает сессию.
func (s *Service) Logout(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// EvictSessions удаляет истёкшие сессии. Возвращает число удалённых.
func (s *Service) EvictSessions(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
