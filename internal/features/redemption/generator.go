package redemption

import (
	"regexp"
	"strings"

	"serotonyl.ru/wallet-bot/internal/common"
)

const segmentLength = 4

var prefixPattern = regexp.MustCompile(`^[A-Z0-9]{1,16}$`)

// GenerateCode собирает код вида PREFIX-XXXX-XXXX-XXXX.
func GenerateCode(prefix string, segments int) (string, error) {
	if segments < 1 {
		return "", common.Validation("число сегментов должно быть >= 1")
	}
	var sb strings.Builder
	sb.Grow(len(prefix) + segments*(segmentLength+1))
	sb.WriteString(prefix)
	for i := 0; i < segments; i++ {
		part, err := common.RandomString(segmentLength, common.CodeCharset)
		if err != nil {
			return "", err
		}
		sb.WriteByte('-')
		sb.WriteString(part)
	}
	return sb.String(), nil
}
