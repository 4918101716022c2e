package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const defaultTelegramURL = "https://api.telegram.org"

// Telegram posts messages through the Bot API sendMessage method.
type Telegram struct {
	baseURL    string
	token      string
	chatID     string
	parseMode  string
	timeout    time.Duration
	httpClient *http.Client
}

// NewTelegram constructs a Bot API notifier for chatID, which is either a
// numeric chat ID or a channel username such as "@pxwatch".
func NewTelegram(token, chatID string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		baseURL:    defaultTelegramURL,
		token:      token,
		chatID:     chatID,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TelegramOption configures a Telegram notifier.
type TelegramOption func(*Telegram)

// WithTelegramBaseURL overrides https://api.telegram.org.
func WithTelegramBaseURL(u string) TelegramOption {
	return func(t *Telegram) {
		if u != "" {
			t.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithParseMode sets the Bot API parse_mode (e.g. tgbotapi.ModeMarkdown).
func WithParseMode(mode string) TelegramOption {
	return func(t *Telegram) { t.parseMode = mode }
}

// WithTelegramTimeout bounds each Send.
func WithTelegramTimeout(d time.Duration) TelegramOption {
	return func(t *Telegram) {
		if d > 0 {
			t.timeout = d
		}
	}
}

func init() {
	Register("telegram", false, func(cfg *Config) (Service, error) {
		return NewTelegram(cfg.Token, cfg.Channel,
			WithTelegramBaseURL(cfg.BaseURL),
			WithParseMode(cfg.ParseMode),
			WithTelegramTimeout(cfg.EffectiveTimeout()),
		), nil
	})
}

// contextClient binds every Bot API request to one Send's context.
type contextClient struct {
	ctx    context.Context
	client *http.Client
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

// bot builds a BotAPI without the getMe round trip NewBotAPI performs.
func (t *Telegram) bot(ctx context.Context) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  t.token,
		Client: contextClient{ctx: ctx, client: t.httpClient},
	}
	bot.SetAPIEndpoint(t.baseURL + "/bot%s/%s")
	return bot
}

func (t *Telegram) message(text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(t.chatID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(t.chatID, text)
	}
	msg.ParseMode = t.parseMode
	return msg
}

// Send implements Service.
func (t *Telegram) Send(ctx context.Context, text string) error {
	ctx, cancel := withTimeout(ctx, t.timeout)
	defer cancel()

	if _, err := t.bot(ctx).Request(t.message(text)); err != nil {
		var apiErr *tgbotapi.Error
		switch {
		case errors.As(err, &apiErr):
			return fmt.Errorf("telegram: send failed with code %d: %s", apiErr.Code, apiErr.Message)
		case ctx.Err() != nil:
			return fmt.Errorf("telegram: send: %w", ctx.Err())
		default:
			// The request URL embeds the token; report only the cause.
			return fmt.Errorf("telegram: send: %w", unwrapURLError(err))
		}
	}
	return nil
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
