package common

import "context"

// Sender отправляет текстовое сообщение в чат.
// Реализуется ботом; обработчики фич зависят только от этого интерфейса.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string)
}
