package telegram

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-study-planner/internal/application"
	"telegram-study-planner/internal/domain/ports/adapter"
)

// BotRunner is the full bot surface main wires up: the delivery port plus the
// polling lifecycle.
type BotRunner interface {
	adapter.TelegramBotAdapter
	Bind(facade *application.BotFacade)
	StartPolling(ctx context.Context) error
	StopPolling()
}

var _ BotRunner = (*RealTelegramBotAdapter)(nil)
var _ BotRunner = (*NoopBotAdapter)(nil)

// NoopBotAdapter implements the bot surface for local/dev runs without a bot
// token. It logs messages instead of sending real Telegram messages; commands
// can only arrive through the REST facade.
type NoopBotAdapter struct {
	facade *application.BotFacade
	log    *zerolog.Logger
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	compLog := logger.With().Str("component", "NoopBot").Logger()
	return &NoopBotAdapter{log: &compLog}
}

func (b *NoopBotAdapter) Bind(facade *application.BotFacade) {
	b.facade = facade
}

// StartPolling blocks until ctx is cancelled. There is no update stream to
// poll without a token.
func (b *NoopBotAdapter) StartPolling(ctx context.Context) error {
	b.log.Warn().Msg("noop bot: no token configured, telegram updates disabled")
	<-ctx.Done()
	return nil
}

func (b *NoopBotAdapter) StopPolling() {}

// SendMessage logs the message and simulates a small delay.
func (b *NoopBotAdapter) SendMessage(ctx context.Context, params adapter.SendMessageParams) error {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	b.log.Info().Int64("chat_id", params.ChatID).Str("text", params.Text).Msg("noop send")
	return nil
}
