package common

import (
	"crypto/rand"
	"fmt"
)

// CodeCharset: алфавит кодов погашения и приглашений.
const CodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString возвращает n случайных символов из charset.
// Байты, дающие смещение по модулю, отбрасываются.
func RandomString(n int, charset string) (string, error) {
	if n <= 0 || len(charset) == 0 || len(charset) > 256 {
		return "", fmt.Errorf("некорректные параметры генерации: n=%d, charset=%d", n, len(charset))
	}
	limit := 256 - 256%len(charset)
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("ошибка генерации случайных байт: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, charset[int(b)%len(charset)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
