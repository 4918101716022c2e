package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// Slack posts messages with chat.postMessage.
type Slack struct {
	client  *slack.Client
	channel string
	timeout time.Duration
}

// NewSlack constructs a Slack notifier. apiURL may be empty for the public API.
func NewSlack(token, channel, apiURL string, timeout time.Duration) *Slack {
	var opts []slack.Option
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Slack{
		client:  slack.New(token, opts...),
		channel: channel,
		timeout: timeout,
	}
}

func init() {
	Register("slack", false, func(cfg *Config) (Service, error) {
		return NewSlack(cfg.Token, cfg.Channel, cfg.BaseURL, cfg.EffectiveTimeout()), nil
	})
}

// Send implements Service.
func (s *Slack) Send(ctx context.Context, text string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if _, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack: post message channel=%s: %w", s.channel, err)
	}
	return nil
}
