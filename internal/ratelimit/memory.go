// Package ratelimit ограничивает частоту запросов по ключу
// алгоритмом скользящего окна.
//
// Memory держит окна в процессе и подходит для одного экземпляра.
// Redis хранит окна в sorted set и общий для всех экземпляров.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter решает, пропустить ли очередной запрос по ключу.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Memory: лимитер в памяти процесса.
// Фоновой очистки нет: устаревшие ключи удаляет Evict, его дёргает планировщик.
type Memory struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewMemory создаёт лимитер: не больше limit запросов за window.
func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// SetClock подменяет часы.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	recent := m.recent(m.requests[key], now)
	if len(recent) >= m.limit {
		m.requests[key] = recent
		return false, nil
	}
	m.requests[key] = append(recent, now)
	return true, nil
}

// Evict удаляет ключи без запросов в текущем окне.
// Возвращает число удалённых ключей.
func (m *Memory) Evict(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, times := range m.requests {
		recent := m.recent(times, now)
		if len(recent) == 0 {
			delete(m.requests, key)
			removed++
			continue
		}
		m.requests[key] = recent
	}
	return removed
}

// Len: сколько ключей сейчас отслеживается.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *Memory) recent(times []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-m.window)
	i := 0
	// Время в окне только растёт, достаточно отрезать голову
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}
