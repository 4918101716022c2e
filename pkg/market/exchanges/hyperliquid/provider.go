// Package hyperliquid prices assets from Hyperliquid mid prices. Asset IDs are
// coin names such as "BTC" or "kPEPE"; a trailing "USDT" is ignored.
package hyperliquid

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"pxwatch/pkg/market"
)

const defaultProviderTimeout = 8 * time.Second

// Provider wraps Client behind the market.Provider contract.
type Provider struct {
	name    string
	client  *Client
	timeout time.Duration
}

type providerConfig struct {
	timeout      time.Duration
	clientConfig []Option
}

// ProviderOption customises the provider.
type ProviderOption func(*providerConfig)

// WithTimeout overrides the default per-call timeout.
func WithTimeout(timeout time.Duration) ProviderOption {
	return func(cfg *providerConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithClientOptions passes options to the underlying client.
func WithClientOptions(options ...Option) ProviderOption {
	return func(cfg *providerConfig) {
		cfg.clientConfig = append(cfg.clientConfig, options...)
	}
}

// NewProvider constructs a Hyperliquid price provider.
func NewProvider(name string, opts ...ProviderOption) *Provider {
	cfg := &providerConfig{timeout: defaultProviderTimeout}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Provider{
		name:    name,
		client:  NewClient(cfg.clientConfig...),
		timeout: cfg.timeout,
	}
}

func init() {
	market.RegisterProvider("hyperliquid", func(name string, cfg *market.ProviderConfig) (market.Provider, error) {
		opts := []ProviderOption{}
		clientOptions := []Option{}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		if cfg.HTTPTimeout > 0 {
			clientOptions = append(clientOptions, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		switch url := strings.TrimSpace(cfg.URL); url {
		case "":
		case "testnet":
			clientOptions = append(clientOptions, WithBaseURL(testnetBaseURL))
		default:
			clientOptions = append(clientOptions, WithBaseURL(url))
		}
		if len(clientOptions) > 0 {
			opts = append(opts, WithClientOptions(clientOptions...))
		}
		return NewProvider(name, opts...), nil
	})
}

// Price implements market.Provider.
func (p *Provider) Price(ctx context.Context, assetID string) (float64, error) {
	key := normalizeKey(assetID)
	if key == "" {
		return 0, market.Unavailable(assetID, "%s: empty asset id", p.name)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	mids, err := p.client.AllMids(ctx)
	if err != nil {
		return 0, market.UnavailableErr(assetID, fmt.Errorf("%s: %w", p.name, err))
	}
	// Coin names are case sensitive upstream ("kPEPE"), so fall back to a
	// case-insensitive scan when the exact key is absent.
	mid := mids.Get(gjson.Escape(strings.TrimSpace(assetID)))
	if !mid.Exists() {
		mids.ForEach(func(coin, value gjson.Result) bool {
			if strings.EqualFold(coin.String(), key) {
				mid = value
				return false
			}
			return true
		})
	}
	price, err := market.ParsePrice(mid)
	if err != nil {
		return 0, market.UnavailableErr(assetID, fmt.Errorf("%s: coin %s: %w", p.name, key, err))
	}
	return price, nil
}
