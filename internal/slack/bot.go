// Package slack connects the chat service to Slack over Socket Mode.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"golang.org/x/time/rate"
)

// Per-user message budget: a small burst, refilling once per second.
const (
	userRateInterval = time.Second
	userRateBurst    = 3
)

const (
	usageMessage     = "Please provide a message. Usage: `/chatbot your message here`"
	rateLimitMessage = "You're sending messages too quickly. Please wait a moment and try again."
)

// Responder produces a reply for a user message. Implemented by
// ai.Service.
type Responder interface {
	Response(ctx context.Context, message, userID, agentID string) string
}

// Bot handles Slack events over Socket Mode: direct messages, mentions,
// and the /chatbot slash command.
type Bot struct {
	api       *slack.Client
	socket    *socketmode.Client
	responder Responder
	logger    *slog.Logger

	botUserID string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewBot creates a bot from a bot token (xoxb-) and an app-level token
// (xapp-) for Socket Mode.
func NewBot(botToken, appToken string, responder Responder, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	return &Bot{
		api:       api,
		socket:    socketmode.New(api),
		responder: responder,
		logger:    logger,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Run authenticates, then processes Socket Mode events until the context
// is canceled.
func (b *Bot) Run(ctx context.Context) error {
	auth, err := b.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	b.botUserID = auth.UserID
	b.logger.Info("slack bot authenticated", "user_id", auth.UserID, "team", auth.Team)

	go b.handleEvents(ctx)
	if err := b.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("slack socket mode: %w", err)
	}
	return nil
}

// BotInfo reports the authenticated identity, for status surfaces.
func (b *Bot) BotInfo(ctx context.Context) (map[string]string, error) {
	auth, err := b.api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack auth test: %w", err)
	}
	return map[string]string{
		"user_id": auth.UserID,
		"bot_id":  auth.BotID,
		"team":    auth.Team,
		"user":    auth.User,
	}, nil
}

// SendMessage posts text to a channel.
func (b *Bot) SendMessage(ctx context.Context, channel, text string) error {
	_, _, err := b.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting to %s: %w", channel, err)
	}
	return nil
}

// SetPresence sets the bot's presence to "auto" or "away". Used by the
// health monitor to signal backend availability.
func (b *Bot) SetPresence(presence string) {
	if err := b.api.SetUserPresence(presence); err != nil {
		b.logger.Error("failed to set presence", "presence", presence, "error", err)
	}
}

func (b *Bot) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.socket.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				b.socket.Ack(*evt.Request)
				b.handleEventsAPI(ctx, apiEvent)
			case socketmode.EventTypeSlashCommand:
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				req := *evt.Request
				b.handleSlashCommand(ctx, cmd, func() { b.socket.Ack(req) })
			case socketmode.EventTypeConnected:
				b.logger.Info("slack socket connected")
			case socketmode.EventTypeConnectionError:
				b.logger.Warn("slack socket connection error")
			}
		}
	}
}

func (b *Bot) handleEventsAPI(ctx context.Context, apiEvent slackevents.EventsAPIEvent) {
	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Mentions in channels arrive as AppMentionEvent too; handling them
		// there avoids double replies.
		if b.isMention(ev.Text) && !isDM(ev.Channel) {
			return
		}
		if reply := b.messageReply(ctx, ev.SubType, ev.User, ev.Channel, ev.Text); reply != "" {
			b.post(ctx, ev.Channel, reply)
		}
	case *slackevents.AppMentionEvent:
		text := b.stripMention(ev.Text)
		if text == "" {
			return
		}
		b.post(ctx, ev.Channel, b.respond(ctx, text, ev.User))
	}
}

// messageReply decides the reply for a message event, or "" to stay
// silent. Bot messages and empty text are skipped; channel messages
// require a mention, DMs do not.
func (b *Bot) messageReply(ctx context.Context, subType, userID, channel, text string) string {
	if subType == "bot_message" || text == "" || userID == "" {
		return ""
	}

	mentioned := b.isMention(text)
	if !isDM(channel) && !mentioned {
		return ""
	}
	if mentioned {
		text = b.stripMention(text)
		if text == "" {
			return ""
		}
	}
	return b.respond(ctx, text, userID)
}

// handleSlashCommand acks the command immediately, then computes the reply
// in the background and delivers it through the command's response URL.
// Slack drops slash commands that are not acked within 3 seconds, and a
// completion round trip can exceed that.
func (b *Bot) handleSlashCommand(ctx context.Context, cmd slack.SlashCommand, ack func()) {
	ack()
	go func() {
		reply := b.slashResponse(ctx, cmd.Command, cmd.Text, cmd.UserID)
		msg := &slack.WebhookMessage{
			ResponseType: "in_channel",
			Text:         reply,
		}
		if err := slack.PostWebhookContext(ctx, cmd.ResponseURL, msg); err != nil {
			b.logger.Error("failed to deliver slash command reply",
				"command", cmd.Command, "error", err)
		}
	}()
}

// slashResponse handles the /chatbot command.
func (b *Bot) slashResponse(ctx context.Context, command, text, userID string) string {
	if command != "/chatbot" {
		return fmt.Sprintf("Unknown command %s", command)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return usageMessage
	}
	return b.respond(ctx, text, userID)
}

// respond applies the per-user rate limit and asks the responder.
func (b *Bot) respond(ctx context.Context, text, userID string) string {
	if !b.allow(userID) {
		return rateLimitMessage
	}
	return b.responder.Response(ctx, text, userID, "")
}

func (b *Bot) allow(userID string) bool {
	b.mu.Lock()
	limiter, ok := b.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(userRateInterval), userRateBurst)
		b.limiters[userID] = limiter
	}
	b.mu.Unlock()
	return limiter.Allow()
}

func (b *Bot) post(ctx context.Context, channel, text string) {
	if err := b.SendMessage(ctx, channel, text); err != nil {
		b.logger.Error("failed to post reply", "channel", channel, "error", err)
	}
}

func (b *Bot) isMention(text string) bool {
	return b.botUserID != "" && strings.Contains(text, "<@"+b.botUserID+">")
}

func (b *Bot) stripMention(text string) string {
	if b.botUserID == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "<@"+b.botUserID+">", ""))
}

// isDM reports whether a channel id denotes a direct message.
func isDM(channel string) bool {
	return strings.HasPrefix(channel, "D")
}
