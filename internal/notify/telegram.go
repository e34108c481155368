// Package notify sends the run summary to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"gopkg.in/telebot.v3"
)

const sendTimeout = 15 * time.Second

// Notifier delivers a short text message.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Telegram posts messages through the Bot API. It never polls for updates.
type Telegram struct {
	bot       *telebot.Bot
	chat      *telebot.Chat
	mu        sync.Mutex
	transport *ctxTransport
}

// ctxTransport binds the requests telebot makes to the context of the
// current Notify call, since telebot's Send takes no context.
type ctxTransport struct {
	base http.RoundTripper
	ctx  context.Context
}

func (c *ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if c.ctx != nil {
		req = req.WithContext(c.ctx)
	}
	return c.base.RoundTrip(req)
}

// NewTelegram creates a send-only bot. apiURL overrides the Bot API base URL
// and may be empty.
func NewTelegram(token string, chatID int64, apiURL string) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram token and chat id are required")
	}
	transport := &ctxTransport{base: http.DefaultTransport}
	bot, err := telebot.NewBot(telebot.Settings{
		URL:     apiURL,
		Token:   token,
		Offline: true,
		Client:  &http.Client{Timeout: sendTimeout, Transport: transport},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot initialization failed: %w", err)
	}
	return &Telegram{bot: bot, chat: &telebot.Chat{ID: chatID}, transport: transport}, nil
}

// Notify sends text to the chat. The send is bounded by ctx and by a 15s
// client timeout, whichever ends first.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transport.ctx = ctx
	defer func() { t.transport.ctx = nil }()

	if _, err := t.bot.Send(t.chat, text, &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("telegram send failed: %w", ctxErr)
		}
		return fmt.Errorf("telegram send failed: %w", err)
	}
	return nil
}
