package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-study-planner/internal/application"
	"telegram-study-planner/internal/config"
	"telegram-study-planner/internal/domain/ports/adapter"
	"telegram-study-planner/internal/infra/logging"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

// RealTelegramBotAdapter implements adapter.TelegramBotAdapter using tgbotapi
// with concurrent polling. Commands route into the facade; non-command text
// goes through the conversation state machine.
type RealTelegramBotAdapter struct {
	bot    *tgbotapi.BotAPI
	cfg    *config.BotConfig
	facade *application.BotFacade
	log    *zerolog.Logger

	// updateWorkers is how many goroutines will concurrently process updates.
	updateWorkers int
	// cancelPolling cancels polling when called
	cancelPolling context.CancelFunc
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}

	compLog := logger.With().Str("component", "TelegramBot").Logger()
	return &RealTelegramBotAdapter{
		bot:           bot,
		cfg:           cfg,
		log:           &compLog,
		updateWorkers: workers,
	}, nil
}

// Bind attaches the command facade. The presenter needs the bot and the
// facade needs the presenter, so the facade arrives after construction and
// must be set before StartPolling.
func (r *RealTelegramBotAdapter) Bind(facade *application.BotFacade) {
	r.facade = facade
}

// StartPolling begins polling Telegram for updates concurrently.
// It runs until ctx is canceled.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	if r.facade == nil {
		return errors.New("bot facade not bound")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	// Start worker goroutines to process updates concurrently
	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case update, ok := <-updateChan:
					if !ok {
						return
					}
					if err := r.handleUpdate(ctx, update); err != nil {
						r.log.Error().Err(err).Int("worker", workerID).Msg("update handling failed")
					}
				case <-ctx.Done():
					return
				}
			}
		}(i + 1)
	}

	// Dispatcher goroutine: feed updates into updateChan
	go func() {
		defer close(updateChan)
		for {
			select {
			case update := <-updates:
				select {
				case updateChan <- update:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	r.bot.StopReceivingUpdates()
	wg.Wait()
	return nil
}

// StopPolling stops the polling loop gracefully.
func (r *RealTelegramBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

// SendMessage pushes one message to a chat. Used directly by the result
// presenter.
func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, params adapter.SendMessageParams) error {
	msg := tgbotapi.NewMessage(params.ChatID, params.Text)
	if params.ParseMode != "" {
		msg.ParseMode = params.ParseMode
	}
	_, err := r.bot.Send(msg)
	return err
}

// handleUpdate processes a single Telegram update.
func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.Message == nil || update.Message.From == nil {
		return nil
	}
	requesterID := update.Message.From.ID
	chatID := update.Message.Chat.ID
	text := update.Message.Text
	ctx = logging.WithChatID(logging.WithRequesterID(ctx, requesterID), chatID)

	var reply string
	var err error
	if len(text) > 0 && text[0] == '/' {
		reply, err = r.handleCommand(ctx, requesterID, chatID, update.Message.From.UserName, text)
	} else {
		sentAt := time.Unix(int64(update.Message.Date), 0)
		reply, err = r.facade.HandleText(ctx, requesterID, chatID, text, sentAt)
	}
	if err != nil {
		logging.With(ctx, r.log).Error().Err(err).Msg("command failed")
		return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: chatID, Text: "Something went wrong. Please try again later."})
	}
	if reply == "" {
		return nil
	}
	return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: chatID, Text: reply})
}

func (r *RealTelegramBotAdapter) handleCommand(ctx context.Context, requesterID, chatID int64, username, text string) (string, error) {
	cmd := strings.TrimSpace(text)
	if i := strings.IndexAny(cmd, " @"); i > 0 {
		cmd = cmd[:i]
	}
	switch cmd {
	case "/start":
		return r.facade.HandleStart(ctx, requesterID, username)
	case "/help":
		return r.facade.HandleHelp(ctx)
	case "/plan":
		return r.facade.HandlePlan(ctx, requesterID)
	case "/entergroup":
		return r.facade.HandleEnterGroup(ctx, requesterID)
	case "/entergoal":
		return r.facade.HandleEnterGoal(ctx, requesterID)
	case "/generateplan":
		return r.facade.HandleGeneratePlan(ctx, requesterID, chatID)
	case "/getplan":
		return r.facade.HandleGetPlan(ctx, requesterID, chatID)
	case "/cancel":
		return r.facade.HandleCancel(ctx, requesterID)
	default:
		return "Unknown command. Send /help for the list of commands.", nil
	}
}
