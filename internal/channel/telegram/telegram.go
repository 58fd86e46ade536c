// Package telegram implements a channel.Poller backed by long polling
// against the Telegram Bot API.
//
// Grounded on internal/channels/telegram/adapter.go of the teacher repo
// (bot.New, long-polling handler registration, bot.Start blocking until
// context cancellation); trimmed to the spec §4.9 poller contract.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/haasonsaas/sentineld/internal/apperr"
	"github.com/haasonsaas/sentineld/internal/channel"
)

// Config configures the Telegram poller.
type Config struct {
	Token  string
	Logger *slog.Logger
}

// Adapter is a channel.Poller and channel.Sender for Telegram, processing
// every update sequentially through a channel.Handler.
type Adapter struct {
	cfg     Config
	bot     *bot.Bot
	handler *channel.Handler
	logger  *slog.Logger
	cancel  context.CancelFunc
}

// New constructs a Telegram adapter bound to handler for message processing.
func New(cfg Config, handler *channel.Handler) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, &apperr.ConfigMissingError{Setting: "telegram.token", Hint: "bot token from @BotFather"}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Adapter{cfg: cfg, handler: handler, logger: cfg.Logger.With("channel", "telegram")}, nil
}

// Type identifies the channel.
func (a *Adapter) Type() string { return "telegram" }

// Start opens the bot connection and begins long polling.
func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	b, err := bot.New(a.cfg.Token, bot.WithDefaultHandler(a.onUpdate))
	if err != nil {
		return &apperr.ProviderWireError{Provider: "telegram", Err: err}
	}
	a.bot = b

	go b.Start(ctx)
	return nil
}

// Stop cancels the polling loop.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	return nil
}

// onUpdate is invoked once per incoming Telegram update. Updates are
// delivered one goroutine at a time by the bot library's default dispatch,
// and we never fan them out further, preserving per-conversation ordering
// (spec §4.9 step 6).
func (a *Adapter) onUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	in := channel.Inbound{
		ChannelType:    a.Type(),
		ConversationID: strconv.FormatInt(update.Message.Chat.ID, 10),
		SenderID:       strconv.FormatInt(update.Message.From.ID, 10),
		SenderName:     update.Message.From.Username,
		Text:           update.Message.Text,
	}
	if err := a.handler.Handle(ctx, a, in); err != nil {
		a.logger.Error("telegram message handling failed", "error", err, "conversation", in.ConversationID)
	}
}

func (a *Adapter) chatID(conversationID string) int64 {
	id, _ := strconv.ParseInt(conversationID, 10, 64)
	return id
}

// SendTyping implements channel.Sender.
func (a *Adapter) SendTyping(ctx context.Context, conversationID string) error {
	_, err := a.bot.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: a.chatID(conversationID),
		Action: models.ChatActionTyping,
	})
	return err
}

// SendText implements channel.Sender, sending with markdown formatting.
func (a *Adapter) SendText(ctx context.Context, conversationID, text string) (string, error) {
	msg, err := a.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    a.chatID(conversationID),
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
	})
	if err != nil {
		// Markdown parse failure: retry as plain text (spec §4.9 step 5).
		msg, err = a.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: a.chatID(conversationID), Text: text})
		if err != nil {
			return "", err
		}
	}
	return strconv.Itoa(msg.ID), nil
}

// SendPlain implements channel.Sender.
func (a *Adapter) SendPlain(ctx context.Context, conversationID, text string) (string, error) {
	msg, err := a.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: a.chatID(conversationID), Text: text})
	if err != nil {
		return "", err
	}
	return strconv.Itoa(msg.ID), nil
}

// EditText implements channel.Sender.
func (a *Adapter) EditText(ctx context.Context, conversationID, messageID, text string) error {
	id, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("telegram: invalid message id %q: %w", messageID, err)
	}
	_, err = a.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    a.chatID(conversationID),
		MessageID: id,
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
	})
	if err != nil {
		_, err = a.bot.EditMessageText(ctx, &bot.EditMessageTextParams{ChatID: a.chatID(conversationID), MessageID: id, Text: text})
	}
	return err
}
