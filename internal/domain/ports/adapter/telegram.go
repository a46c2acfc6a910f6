package adapter

import "context"

// SendMessageParams carries everything needed to push one chat message.
type SendMessageParams struct {
	ChatID    int64
	Text      string
	ParseMode string // "" | "HTML"
}

// TelegramBotAdapter is the notification channel port. Delivery failures are
// logged by callers and must not abort their bookkeeping.
type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, params SendMessageParams) error
}
