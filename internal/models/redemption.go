package models

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CodeType: что даёт код погашения.
type CodeType string

const (
	CodeTypeCredits CodeType = "credits"
	CodeTypePlan    CodeType = "plan"
)

// CodeStatus: хранимый статус кода.
type CodeStatus string

const (
	CodeActive    CodeStatus = "active"
	CodeUsed      CodeStatus = "used"
	CodeExpired   CodeStatus = "expired"
	CodeCancelled CodeStatus = "cancelled"
)

// codePattern: PREFIX-XXXX-XXXX-XXXX, сегментов от одного.
// Длина префикса здесь не ограничена: при погашении принимаются и
// импортированные коды, лимит в 16 символов действует только на генерацию.
var codePattern = regexp.MustCompile(`^[A-Z0-9]+(-[A-Z0-9]{4})+$`)

// RedemptionCode: одноразовый код на токены или тариф.
type RedemptionCode struct {
	Code      string     `db:"code" json:"code"`
	BatchID   string     `db:"batch_id" json:"batch_id"`
	Type      CodeType   `db:"code_type" json:"code_type"`
	Value     string     `db:"code_value" json:"code_value"` // Количество токенов или код тарифа
	ValidDays int        `db:"valid_days" json:"valid_days"` // Срок тарифа в днях, только для plan
	Status    CodeStatus `db:"status" json:"status"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	UsedBy    *int64     `db:"used_by" json:"used_by,omitempty"`
	UsedAt    *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedBy int64      `db:"created_by" json:"created_by"`
	Notes     string     `db:"notes" json:"notes"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// EffectiveStatus учитывает истечение срока без записи в хранилище.
func (c *RedemptionCode) EffectiveStatus(now time.Time) CodeStatus {
	if c.Status == CodeActive && c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return CodeExpired
	}
	return c.Status
}

// Credits: количество токенов для кода типа credits.
func (c *RedemptionCode) Credits() (int64, error) {
	return strconv.ParseInt(c.Value, 10, 64)
}

// NormalizeCode приводит введённый код к каноничному виду.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidCodeFormat проверяет формат нормализованного кода.
func ValidCodeFormat(code string) bool {
	return codePattern.MatchString(code)
}
