// Package scrape reads prices embedded as JSON inside HTML pages, such as the
// coin detail pages on coinmarketcap.com.
package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"pxwatch/pkg/market"
)

const (
	defaultURL         = "https://coinmarketcap.com/currencies/{id}/"
	defaultPattern     = `"statistics":(\{.*?\})`
	defaultPricePath   = "price"
	defaultHTTPTimeout = 10 * time.Second
)

// Provider scrapes one page per asset and extracts the price from the first
// capture group of a fixed pattern.
type Provider struct {
	name       string
	url        string
	pattern    *regexp.Regexp
	pricePath  string
	userAgent  string
	httpClient *http.Client
	timeout    time.Duration
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

// WithURL overrides the page URL template; {id} is replaced by the asset ID.
func WithURL(tmpl string) Option {
	return func(p *Provider) {
		if tmpl != "" {
			p.url = tmpl
		}
	}
}

// WithPattern overrides the pattern locating the embedded JSON.
func WithPattern(re *regexp.Regexp) Option {
	return func(p *Provider) {
		if re != nil {
			p.pattern = re
		}
	}
}

// WithPricePath overrides the gjson path applied to the captured JSON.
func WithPricePath(path string) Option {
	return func(p *Provider) {
		if path != "" {
			p.pricePath = path
		}
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

// WithName sets the name used in logs and errors.
func WithName(name string) Option {
	return func(p *Provider) {
		if name != "" {
			p.name = name
		}
	}
}

// New constructs a scraping provider with coinmarketcap.com defaults.
func New(opts ...Option) *Provider {
	p := &Provider{
		name:       "scrape",
		url:        defaultURL,
		pattern:    regexp.MustCompile(defaultPattern),
		pricePath:  defaultPricePath,
		userAgent:  market.DefaultUserAgent,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		timeout:    market.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func init() {
	market.RegisterProvider("scrape", build)
}

func build(name string, cfg *market.ProviderConfig) (market.Provider, error) {
	opts := []Option{
		WithName(name),
		WithURL(cfg.URL),
		WithPricePath(cfg.PricePath),
		WithUserAgent(cfg.UserAgent),
		WithTimeout(cfg.EffectiveTimeout()),
	}
	if cfg.Pattern != "" {
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", cfg.Pattern, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("pattern %q must contain a capture group", cfg.Pattern)
		}
		opts = append(opts, WithPattern(re))
	}
	if cfg.HTTPTimeout > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
	}
	return New(opts...), nil
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
	header.Set("User-Agent", p.userAgent)
	header.Set("Accept", "text/html,application/xhtml+xml")
	header.Set("Accept-Language", "en-US,en;q=0.9")
	header.Set("Cache-Control", "no-cache")

	body, err := market.Get(ctx, p.httpClient, market.ExpandTemplate(p.url, url.PathEscape(assetID)), header)
	if err != nil {
		return 0, market.UnavailableErr(assetID, fmt.Errorf("%s: %w", p.name, err))
	}
	match := p.pattern.FindSubmatch(body)
	if len(match) < 2 {
		return 0, market.Unavailable(assetID, "%s: pattern %s not found", p.name, p.pattern)
	}
	embedded := match[1]
	if !gjson.ValidBytes(embedded) {
		return 0, market.Unavailable(assetID, "%s: embedded json is malformed", p.name)
	}
	price, err := market.ParsePrice(gjson.GetBytes(embedded, p.pricePath))
	if err != nil {
		return 0, market.UnavailableErr(assetID, fmt.Errorf("%s: %w", p.name, err))
	}
	return price, nil
}
