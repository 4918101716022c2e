package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultPushbulletURL = "https://api.pushbullet.com"

// Pushbullet sends note pushes. An empty channel pushes to every device of
// the token's owner; otherwise it is a channel tag.
type Pushbullet struct {
	baseURL    string
	token      string
	channelTag string
	timeout    time.Duration
	httpClient *http.Client
}

type pushbulletRequest struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	ChannelTag string `json:"channel_tag,omitempty"`
}

// NewPushbullet constructs a Pushbullet notifier.
func NewPushbullet(token, channelTag, baseURL string, timeout time.Duration) *Pushbullet {
	if baseURL == "" {
		baseURL = defaultPushbulletURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Pushbullet{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		channelTag: channelTag,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

func init() {
	Register("pushbullet", true, func(cfg *Config) (Service, error) {
		return NewPushbullet(cfg.Token, cfg.Channel, cfg.BaseURL, cfg.EffectiveTimeout()), nil
	})
}

// Send implements Service. The first line of text becomes the push title.
func (p *Pushbullet) Send(ctx context.Context, text string) error {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	title, _, _ := strings.Cut(text, "\n")
	jsonData, err := json.Marshal(pushbulletRequest{
		Type:       "note",
		Title:      title,
		Body:       text,
		ChannelTag: p.channelTag,
	})
	if err != nil {
		return fmt.Errorf("pushbullet: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/pushes", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("pushbullet: build request: %w", err)
	}
	req.Header.Set("Access-Token", p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pushbullet: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushbullet: send failed with status %d", resp.StatusCode)
	}
	return nil
}
