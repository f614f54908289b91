package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Metadata описывает контекст записи журнала. Набор вариантов закрыт:
// на каждую причину ровно одна структура.
type Metadata interface {
	Reason() Reason
	isMetadata()
}

// UsageMetadata: списание за использование сервиса.
type UsageMetadata struct {
	Service   string `json:"service"`
	RequestID string `json:"request_id,omitempty"`
	Note      string `json:"note,omitempty"`
}

// ManualResetMetadata: ручной сброс пакетных токенов до лимита.
type ManualResetMetadata struct {
	ResetsUsedToday int    `json:"resets_used_today"`
	PlanCode        string `json:"plan_code"`
}

// RedemptionMetadata: погашение кода.
type RedemptionMetadata struct {
	Code     string   `json:"code"`
	BatchID  string   `json:"batch_id"`
	CodeType CodeType `json:"code_type"`
}

// ReferralRole: чья сторона реферальной награды.
type ReferralRole string

const (
	RoleInviter ReferralRole = "inviter"
	RoleInvitee ReferralRole = "invitee"
)

// ReferralRewardMetadata: награда за приглашение. Поле invitee_id
// используется как ключ идемпотентности.
type ReferralRewardMetadata struct {
	InviteeID int64        `json:"invitee_id"`
	InviterID int64        `json:"inviter_id"`
	Role      ReferralRole `json:"role"`
	OrderNo   string       `json:"order_no,omitempty"`
}

// NewUserBonusMetadata: приветственный бонус.
type NewUserBonusMetadata struct {
	Source   string `json:"source"`
	Provider string `json:"provider,omitempty"`
}

// AdminAdjustMetadata: ручная корректировка администратором.
type AdminAdjustMetadata struct {
	AdminID int64  `json:"admin_id"`
	Action  string `json:"action"` // add | deduct | set
	Comment string `json:"comment,omitempty"`
}

// RenewalKind: откуда взялось пополнение пакетных токенов.
type RenewalKind string

const (
	RenewalRecovery   RenewalKind = "recovery"
	RenewalActivation RenewalKind = "activation"
)

// PackageRenewalMetadata описывает почасовое восстановление или активация тарифа.
type PackageRenewalMetadata struct {
	PlanCode string      `json:"plan_code"`
	Kind     RenewalKind `json:"kind"`
	Hours    int64       `json:"hours,omitempty"`
	Source   string      `json:"source,omitempty"` // payment | redemption | admin
	OrderNo  string      `json:"order_no,omitempty"`
}

func (UsageMetadata) Reason() Reason          { return ReasonUsage }
func (ManualResetMetadata) Reason() Reason    { return ReasonManualReset }
func (RedemptionMetadata) Reason() Reason     { return ReasonRedemption }
func (ReferralRewardMetadata) Reason() Reason { return ReasonReferralReward }
func (NewUserBonusMetadata) Reason() Reason   { return ReasonNewUserBonus }
func (AdminAdjustMetadata) Reason() Reason    { return ReasonAdminAdjust }
func (PackageRenewalMetadata) Reason() Reason { return ReasonPackageRenewal }

func (UsageMetadata) isMetadata()          {}
func (ManualResetMetadata) isMetadata()    {}
func (RedemptionMetadata) isMetadata()     {}
func (ReferralRewardMetadata) isMetadata() {}
func (NewUserBonusMetadata) isMetadata()   {}
func (AdminAdjustMetadata) isMetadata()    {}
func (PackageRenewalMetadata) isMetadata() {}

// EncodeMetadata сериализует метаданные в JSON для колонки JSONB.
func EncodeMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации метаданных %s: %w", m.Reason(), err)
	}
	return data, nil
}

// DecodeMetadata восстанавливает вариант метаданных по причине записи.
func DecodeMetadata(reason Reason, raw []byte) (Metadata, error) {
	var (
		m   Metadata
		err error
	)
	switch reason {
	case ReasonUsage:
		var v UsageMetadata
		err = unmarshalLoose(raw, &v)
		m = v
	case ReasonManualReset:
		var v ManualResetMetadata
		err = unmarshalLoose(raw, &v)
		m = v
	case ReasonRedemption:
		var v RedemptionMetadata
		err = unmarshalLoose(raw, &v)
		m = v
	case ReasonReferralReward:
		var v ReferralRewardMetadata
		err = unmarshalLoose(raw, &v)
		m = v
	case ReasonNewUserBonus:
		var v NewUserBonusMetadata
		err = unmarshalLoose(raw, &v)
		m = v
	case ReasonAdminAdjust:
		var v AdminAdjustMetadata
		err = unmarshalLoose(raw, &v)
		m = v
	case ReasonPackageRenewal:
		var v PackageRenewalMetadata
		err = unmarshalLoose(raw, &v)
		m = v
	default:
		return nil, fmt.Errorf("неизвестная причина записи журнала %q", reason)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора метаданных %s: %w", reason, err)
	}
	return m, nil
}

func unmarshalLoose(raw []byte, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// MetadataField возвращает значение поля метаданных в текстовом виде,
// так же как его отдаёт оператор ->> в PostgreSQL.
func MetadataField(m Metadata, key string) (string, bool) {
	raw, err := EncodeMetadata(m)
	if err != nil {
		return "", false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return "", false
	}
	v, ok := fields[key]
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprint(v), true
}
