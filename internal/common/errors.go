// errors.go определяет типизированные ошибки,
// которые используются во всех модулях кошелька.
// У каждой ошибки есть стабильный машинный код (для HTTP/бота)
// и безопасное сообщение, которое можно показать пользователю.

package common

import (
	"context"
	"errors"
	"fmt"
)

// Коды ошибок. Меняются только вместе с клиентами.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeLimitReached        = "LIMIT_REACHED"
	CodeDailyLimitExceeded  = "DAILY_LIMIT_EXCEEDED"
	CodeDowngradeNotAllowed = "DOWNGRADE_NOT_ALLOWED"
	CodeNoActivePackage     = "NO_ACTIVE_PACKAGE"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeCodeNotFound        = "CODE_NOT_FOUND"
	CodeCodeNotActive       = "CODE_NOT_ACTIVE"
	CodeCodeAlreadyUsed     = "CODE_ALREADY_USED"
	CodeCodeExpired         = "CODE_EXPIRED"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error: ошибка с машинным кодом.
// Сентинелы ниже сравниваются через errors.Is, детали добавляются через %w.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Ошибки кошелька
var (
	// ErrValidation: некорректные входные данные
	ErrValidation = &Error{Code: CodeValidation, Message: "некорректные данные"}
	// ErrNotFound: пользователь, план или запись не найдены
	ErrNotFound = &Error{Code: CodeNotFound, Message: "не найдено"}
	// ErrConflict: гонка при записи кошелька или кода, операцию можно повторить
	ErrConflict = &Error{Code: CodeConflict, Message: "конфликт параллельных операций, повторите запрос"}
	// ErrInsufficientBalance: изменение увело бы баланс в минус
	ErrInsufficientBalance = &Error{Code: CodeInsufficientBalance, Message: "недостаточно токенов на балансе"}
	// ErrInsufficientCredits: не хватает токенов для списания
	ErrInsufficientCredits = &Error{Code: CodeInsufficientCredits, Message: "недостаточно токенов для списания"}
	// ErrLimitReached: исчерпан лимит сбросов или смен кода
	ErrLimitReached = &Error{Code: CodeLimitReached, Message: "лимит на сегодня исчерпан"}
	// ErrDailyLimitExceeded: превышен дневной лимит использований
	ErrDailyLimitExceeded = &Error{Code: CodeDailyLimitExceeded, Message: "превышен дневной лимит использований"}
	// ErrDowngradeNotAllowed: нельзя перейти на тариф ниже текущего
	ErrDowngradeNotAllowed = &Error{Code: CodeDowngradeNotAllowed, Message: "нельзя перейти на тариф ниже текущего"}
	// ErrNoActivePackage: у пользователя нет активного тарифа
	ErrNoActivePackage = &Error{Code: CodeNoActivePackage, Message: "нет активного тарифа"}
)

// Ошибки доступа
var (
	// ErrUnauthorized: пользователь не аутентифицирован
	ErrUnauthorized = &Error{Code: CodeUnauthorized, Message: "требуется авторизация"}
	// ErrForbidden: нет прав на операцию
	ErrForbidden = &Error{Code: CodeForbidden, Message: "у вас нет прав администратора"}
)

// Ошибки кодов погашения
var (
	ErrCodeNotFound    = &Error{Code: CodeCodeNotFound, Message: "код не найден"}
	ErrCodeNotActive   = &Error{Code: CodeCodeNotActive, Message: "код отключён"}
	ErrCodeAlreadyUsed = &Error{Code: CodeCodeAlreadyUsed, Message: "код уже использован"}
	ErrCodeExpired     = &Error{Code: CodeCodeExpired, Message: "срок действия кода истёк"}
)

// validationError несёт пояснение к ErrValidation.
// Пояснение пишет сам код сервиса, поэтому его можно показать пользователю.
type validationError struct {
	detail string
}

func (e *validationError) Error() string {
	return ErrValidation.Message + ": " + e.detail
}

func (e *validationError) Unwrap() error {
	return ErrValidation
}

// Validation возвращает ErrValidation с пояснением.
//
// Параметры:
//   - format, args: текст пояснения в формате fmt.Sprintf
//
// Возвращает ошибку, для которой errors.Is(err, ErrValidation) == true.
func Validation(format string, args ...any) error {
	return &validationError{detail: fmt.Sprintf(format, args...)}
}

// CodeOf возвращает машинный код ошибки.
// Всё, что не является *Error, считается внутренней ошибкой.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// PublicMessage возвращает текст, который безопасно показать пользователю.
// Показывается только фиксированный текст сентинела: обёртки по цепочке
// могут содержать SQL и прочие внутренние детали. Исключение одно:
// пояснение к ошибке валидации.
func PublicMessage(err error) string {
	var v *validationError
	if errors.As(err, &v) {
		return v.Error()
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "внутренняя ошибка, попробуйте позже"
}

// IsRetryable: можно ли повторить операцию после этой ошибки.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// Retry выполняет fn и повторяет её при конфликте, не более attempts раз.
// Если попытки кончились, возвращается последняя ошибка (ErrConflict).
func Retry(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !IsRetryable(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
