package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/zeromicro/go-zero/core/logx"
)

const (
	defaultBaseURL          = "https://api.hyperliquid.xyz/info"
	testnetBaseURL          = "https://api.hyperliquid-testnet.xyz/info"
	defaultHTTPTimeout      = 10 * time.Second
	defaultMaxRetries       = 0
	defaultRetryBackoffBase = 150 * time.Millisecond
)

type infoRequest struct {
	Type string `json:"type"`
}

// Client posts queries to the Hyperliquid info endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the default info endpoint URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithMaxRetries adjusts the retry budget.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
	}
}

// NewClient constructs a Hyperliquid info client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// AllMids returns the raw allMids document: coin name to mid price string.
func (c *Client) AllMids(ctx context.Context) (gjson.Result, error) {
	body, err := c.doRequest(ctx, infoRequest{Type: "allMids"})
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("hyperliquid: response is not valid json")
	}
	return gjson.ParseBytes(body), nil
}

// doRequest posts req and returns the response body, retrying transport
// failures and non-2xx answers with exponential backoff.
func (c *Client) doRequest(ctx context.Context, req infoRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: encode request: %w", err)
	}
	var lastErr error
	backoff := defaultRetryBackoffBase
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("hyperliquid: build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("hyperliquid: read response: %w", readErr)
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				lastErr = fmt.Errorf("hyperliquid: http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			default:
				return body, nil
			}
		}

		if attempt < c.maxRetries {
			logx.WithContext(ctx).Debugf("hyperliquid: retry type=%s attempt=%d err=%v", req.Type, attempt+1, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}
	return nil, lastErr
}

func normalizeKey(symbol string) string {
	trimmed := strings.TrimSpace(symbol)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) > 4 && strings.EqualFold(trimmed[len(trimmed)-4:], "USDT") {
		trimmed = trimmed[:len(trimmed)-4]
	}
	return strings.ToUpper(trimmed)
}
