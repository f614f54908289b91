// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: ежечасное истечение кодов погашения
// и периодическую чистку лимитеров и админ-сессий в памяти.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// CodeExpirer переводит просроченные коды в статус expired.
type CodeExpirer interface {
	ExpireSweep(ctx context.Context) (int64, error)
}

// Evicter удаляет устаревшие записи из структур в памяти.
type Evicter interface {
	Evict(now time.Time) int
}

// EvictFunc превращает функцию в Evicter.
type EvictFunc func(now time.Time) int

func (f EvictFunc) Evict(now time.Time) int { return f(now) }

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	codes    CodeExpirer
	evicters map[string]Evicter
	now      func() time.Time
}

// NewScheduler создаёт планировщик задач. Сутки в кошельке считаются по UTC,
// поэтому и расписание в UTC.
func NewScheduler(codes CodeExpirer, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		codes:    codes,
		evicters: make(map[string]Evicter),
		now:      now,
	}
}

// AddEvicter регистрирует структуру в памяти для периодической чистки.
// Вызывать до Start.
func (s *Scheduler) AddEvicter(name string, e Evicter) {
	s.evicters[name] = e
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	// Каждый час в 5 минут: просроченные коды
	if _, err := s.cron.AddFunc("5 * * * *", func() { s.ExpireCodes(ctx) }); err != nil {
		return err
	}

	// Каждые 5 минут: чистка лимитеров и сессий
	if _, err := s.cron.AddFunc("@every 5m", s.Evict); err != nil {
		return err
	}

	s.cron.Start()
	log.WithField("evicters", len(s.evicters)).Info("Планировщик задач запущен (UTC)")
	return nil
}

// ExpireCodes выполняет одну чистку просроченных кодов.
func (s *Scheduler) ExpireCodes(ctx context.Context) {
	if s.codes == nil {
		return
	}
	n, err := s.codes.ExpireSweep(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка истечения кодов")
		return
	}
	if n > 0 {
		log.WithField("expired", n).Info("[CRON] Просроченные коды закрыты")
	}
}

// Evict выполняет одну чистку структур в памяти.
func (s *Scheduler) Evict() {
	now := s.now()
	for name, e := range s.evicters {
		if n := e.Evict(now); n > 0 {
			log.WithFields(log.Fields{
				"target":  name,
				"evicted": n,
			}).Debug("[CRON] Очистка")
		}
	}
}

// Stop останавливает планировщик и ждёт завершения текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
