// pluralize.go форматирует суммы токенов для сообщений бота.
// Склонение слова «токен» живёт в helpers.go (PluralizeTokens),
// здесь только сборка готовых строк с числом и знаком.

package common

import "fmt"

// FormatTokens форматирует баланс в читабельную строку.
//
// Примеры:
//
//	FormatTokens(1500) → "1 500 токенов"
//	FormatTokens(21)   → "21 токен"
func FormatTokens(n int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(n), PluralizeTokens(n))
}

// FormatTokensAmount создаёт строку вида "+100 токенов" или "-50 токенов".
// Знак «+» добавляется для нуля и положительных сумм, «-» приходит из самого числа.
//
// Примеры:
//
//	FormatTokensAmount(100) → "+100 токенов"
//	FormatTokensAmount(-1)  → "-1 токен"
func FormatTokensAmount(amount int64) string {
	if amount >= 0 {
		return "+" + FormatTokens(amount)
	}
	return FormatTokens(amount)
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	// Старшие разряды рекурсивно, младшие три цифры с ведущими нулями
	return fmt.Sprintf("%s %03d", FormatNumber(n/1000), n%1000)
}
