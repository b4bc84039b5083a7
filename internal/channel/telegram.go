package channel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"honeypot/internal/config"
	"honeypot/internal/domain"
)

const telegramMaxMsgLen = 4000

// Telegram feeds messages from a decoy Telegram number into the engine.
// Each chat maps to one session, so the whole lifecycle works unchanged.
type Telegram struct {
	token   string
	handler EventHandler
	bot     *tgbotapi.BotAPI
	logger  *slog.Logger
}

func NewTelegram(cfg config.TelegramConfig, handler EventHandler, logger *slog.Logger) *Telegram {
	return &Telegram{
		token:   cfg.Token,
		handler: handler,
		logger:  logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	chatID := update.Message.Chat.ID

	evt := domain.InboundEvent{
		SessionID: fmt.Sprintf("telegram:%d", chatID),
		Message: domain.Message{
			Sender:    domain.SenderScammer,
			Text:      update.Message.Text,
			Timestamp: time.Unix(int64(update.Message.Date), 0).UTC(),
		},
		Metadata: domain.Metadata{Channel: "telegram"},
	}

	resp, err := t.handler.HandleEvent(ctx, evt)
	if err != nil {
		t.logger.Error("telegram event processing failed", "chat", chatID, "error", err)
		return
	}
	if resp.Reply == "" {
		return
	}
	t.send(chatID, resp.Reply)
}

func (t *Telegram) send(chatID int64, text string) {
	if len(text) > telegramMaxMsgLen {
		text = text[:telegramMaxMsgLen]
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("telegram send failed", "chat", chatID, "error", err)
	}
}
