// Package jsonapi reads prices from structured JSON price APIs. The request URL
// and the location of the price inside the response are both templates keyed
// by the asset ID, so one implementation serves several vendors.
package jsonapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"pxwatch/pkg/market"
)

const defaultHTTPTimeout = 10 * time.Second

// Preset holds vendor defaults for a provider type.
type Preset struct {
	URL          string
	PricePath    string
	APIKeyHeader string
	RequireKey   bool
}

// Presets registered as market provider types. "jsonapi" has no defaults and
// needs url and price_path in configuration.
var Presets = map[string]Preset{
	"jsonapi": {},
	"coinmarketcap": {
		URL:          "https://pro-api.coinmarketcap.com/v2/cryptocurrency/quotes/latest?id={id}&convert=USD",
		PricePath:    "data.{id}.quote.USD.price",
		APIKeyHeader: "X-CMC_PRO_API_KEY",
		RequireKey:   true,
	},
	"coingecko": {
		URL:          "https://api.coingecko.com/api/v3/simple/price?ids={id}&vs_currencies=usd",
		PricePath:    "{id}.usd",
		APIKeyHeader: "x-cg-demo-api-key",
	},
	"binance": {
		URL:       "https://api.binance.com/api/v3/ticker/price?symbol={id}",
		PricePath: "price",
	},
}

// Provider fetches one JSON document per asset and reads the price at PricePath.
type Provider struct {
	name         string
	url          string
	pricePath    string
	apiKey       string
	apiKeyHeader string
	userAgent    string
	httpClient   *http.Client
	timeout      time.Duration
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		if hc != nil {
			p.httpClient = hc
		}
	}
}

// WithAPIKey sets the credential and the header carrying it.
func WithAPIKey(header, key string) Option {
	return func(p *Provider) {
		if header != "" {
			p.apiKeyHeader = header
		}
		p.apiKey = key
	}
}

// WithTimeout bounds each Price call.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(p *Provider) {
		if ua != "" {
			p.userAgent = ua
		}
	}
}

// New constructs a provider for urlTemplate and pricePath.
func New(name, urlTemplate, pricePath string, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(urlTemplate) == "" {
		return nil, fmt.Errorf("jsonapi %s: url is required", name)
	}
	if strings.TrimSpace(pricePath) == "" {
		return nil, fmt.Errorf("jsonapi %s: price_path is required", name)
	}
	if _, err := url.Parse(market.ExpandTemplate(urlTemplate, "x")); err != nil {
		return nil, fmt.Errorf("jsonapi %s: invalid url %q: %w", name, urlTemplate, err)
	}
	p := &Provider{
		name:       name,
		url:        urlTemplate,
		pricePath:  pricePath,
		userAgent:  "pxwatch/1.0",
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		timeout:    market.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func init() {
	for typeName, preset := range Presets {
		market.RegisterProvider(typeName, builderFor(typeName, preset))
	}
}

func builderFor(typeName string, preset Preset) market.ProviderBuilder {
	return func(name string, cfg *market.ProviderConfig) (market.Provider, error) {
		urlTemplate := firstNonEmpty(cfg.URL, preset.URL)
		pricePath := firstNonEmpty(cfg.PricePath, preset.PricePath)
		header := firstNonEmpty(cfg.APIKeyHeader, preset.APIKeyHeader)
		if preset.RequireKey && cfg.APIKey == "" {
			return nil, fmt.Errorf("%s provider requires api_key", typeName)
		}
		if cfg.APIKey != "" && header == "" {
			return nil, fmt.Errorf("api_key set but api_key_header is empty")
		}
		opts := []Option{
			WithAPIKey(header, cfg.APIKey),
			WithUserAgent(cfg.UserAgent),
			WithTimeout(cfg.EffectiveTimeout()),
		}
		if cfg.HTTPTimeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		return New(name, urlTemplate, pricePath, opts...)
	}
}

// Price implements market.Provider.
func (p *Provider) Price(ctx context.Context, assetID string) (float64, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return 0, market.Unavailable(assetID, "%s: empty asset id", p.name)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("User-Agent", p.userAgent)
	if p.apiKey != "" {
		header.Set(p.apiKeyHeader, p.apiKey)
	}

	body, err := market.Get(ctx, p.httpClient, market.ExpandTemplate(p.url, url.QueryEscape(assetID)), header)
	if err != nil {
		return 0, market.UnavailableErr(assetID, fmt.Errorf("%s: %w", p.name, err))
	}
	if !gjson.ValidBytes(body) {
		return 0, market.Unavailable(assetID, "%s: response is not valid json", p.name)
	}
	path := market.ExpandTemplate(p.pricePath, gjson.Escape(assetID))
	price, err := market.ParsePrice(gjson.GetBytes(body, path))
	if err != nil {
		return 0, market.UnavailableErr(assetID, fmt.Errorf("%s: %s: %w", p.name, path, err))
	}
	return price, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
