// Package slack implements a channel.Poller backed by Slack Socket Mode.
//
// Grounded on internal/channels/slack/adapter.go of the teacher repo
// (slack.New + socketmode.New, the handleEvents/handleEventsAPI dispatch
// loop, DM/mention filtering); trimmed to the spec §4.9 poller contract.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/haasonsaas/sentineld/internal/apperr"
	"github.com/haasonsaas/sentineld/internal/channel"
)

// Config configures the Slack poller.
type Config struct {
	BotToken string
	AppToken string
	Logger   *slog.Logger
}

// Adapter is a channel.Poller and channel.Sender for Slack Socket Mode.
type Adapter struct {
	cfg       Config
	client    *slack.Client
	socket    *socketmode.Client
	handler   *channel.Handler
	logger    *slog.Logger
	botUserID string
	cancel    context.CancelFunc
}

// New constructs a Slack adapter bound to handler for message processing.
func New(cfg Config, handler *channel.Handler) (*Adapter, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, &apperr.ConfigMissingError{Setting: "slack.bot_token/app_token", Hint: "xoxb- and xapp- tokens"}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	return &Adapter{
		cfg: cfg, client: client, socket: socketmode.New(client),
		handler: handler, logger: cfg.Logger.With("channel", "slack"),
	}, nil
}

// Type identifies the channel.
func (a *Adapter) Type() string { return "slack" }

// Start authenticates, then runs the Socket Mode event loop and the
// dispatch loop that feeds it, until ctx is canceled.
func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	auth, err := a.client.AuthTestContext(ctx)
	if err != nil {
		return &apperr.ProviderWireError{Provider: "slack", Err: err}
	}
	a.botUserID = auth.UserID

	go a.dispatchLoop(ctx)
	go func() {
		if err := a.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("slack socket mode stopped", "error", err)
		}
	}()
	return nil
}

// Stop cancels the event loop.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	return nil
}

// dispatchLoop consumes Socket Mode events one at a time, preserving
// per-conversation ordering (spec §4.9 step 6): each event is fully
// handled (including the blocking streamed reply) before the next is read.
func (a *Adapter) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.socket.Events:
			if !ok {
				return
			}
			a.handleEvent(ctx, evt)
		}
	}
}

func (a *Adapter) handleEvent(ctx context.Context, evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if evt.Request != nil {
		a.socket.Ack(*evt.Request)
	}
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		a.handleMessage(ctx, ev.Channel, ev.User, ev.Text)
	case *slackevents.MessageEvent:
		if ev.BotID != "" || (ev.SubType != "" && ev.SubType != "file_share") {
			return
		}
		isDM := strings.HasPrefix(ev.Channel, "D")
		isMention := strings.Contains(ev.Text, fmt.Sprintf("<@%s>", a.botUserID))
		if !isDM && !isMention && ev.ThreadTimeStamp == "" {
			return
		}
		a.handleMessage(ctx, ev.Channel, ev.User, ev.Text)
	}
}

func (a *Adapter) handleMessage(ctx context.Context, channelID, userID, text string) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(text, fmt.Sprintf("<@%s>", a.botUserID), ""))
	in := channel.Inbound{
		ChannelType:    a.Type(),
		ConversationID: channelID,
		SenderID:       userID,
		Text:           cleaned,
	}
	if err := a.handler.Handle(ctx, a, in); err != nil {
		a.logger.Error("slack message handling failed", "error", err, "conversation", channelID)
	}
}

// SendTyping implements channel.Sender. Slack has no typing-indicator API
// over Socket Mode; this is a documented no-op.
func (a *Adapter) SendTyping(ctx context.Context, conversationID string) error { return nil }

// SendText implements channel.Sender, using mrkdwn formatting.
func (a *Adapter) SendText(ctx context.Context, conversationID, text string) (string, error) {
	_, ts, err := a.client.PostMessageContext(ctx, conversationID, slack.MsgOptionText(text, false))
	if err != nil {
		return "", err
	}
	return ts, nil
}

// SendPlain implements channel.Sender.
func (a *Adapter) SendPlain(ctx context.Context, conversationID, text string) (string, error) {
	_, ts, err := a.client.PostMessageContext(ctx, conversationID, slack.MsgOptionText(text, true))
	if err != nil {
		return "", err
	}
	return ts, nil
}

// EditText implements channel.Sender.
func (a *Adapter) EditText(ctx context.Context, conversationID, messageID, text string) error {
	_, _, _, err := a.client.UpdateMessageContext(ctx, conversationID, messageID, slack.MsgOptionText(text, false))
	return err
}
