// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование чисел, работа с UTC-сутками.
package common

import (
	"time"
)

// pluralForm выбирает одну из трёх форм слова для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → many (0, 5-20, 25-30, 100, ...)
func pluralForm(n int64, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeTokens возвращает правильную форму слова «токен» для числа n.
//
// Примеры:
//
//	PluralizeTokens(1)  → "токен"
//	PluralizeTokens(3)  → "токена"
//	PluralizeTokens(11) → "токенов"
func PluralizeTokens(n int64) string {
	return pluralForm(n, "токен", "токена", "токенов")
}

// PluralizeDays возвращает правильную форму слова «день» для числа n.
func PluralizeDays(n int) string {
	return pluralForm(int64(n), "день", "дня", "дней")
}

// PluralizeHours возвращает правильную форму слова «час».
func PluralizeHours(n int64) string {
	return pluralForm(n, "час", "часа", "часов")
}

// UTCDay возвращает начало UTC-суток, в которые попадает t.
// Все дневные счётчики кошелька сбрасываются на этой границе.
func UTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextUTCMidnight: ближайшая полночь UTC строго после t.
func NextUTCMidnight(t time.Time) time.Time {
	return UTCDay(t).AddDate(0, 0, 1)
}

// IsSameUTCDay: попадают ли два момента в одни UTC-сутки.
func IsSameUTCDay(a, b time.Time) bool {
	return UTCDay(a).Equal(UTCDay(b))
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04 UTC".
// Используется для отображения дат в сообщениях бота.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("02.01.2006 15:04") + " UTC"
}
