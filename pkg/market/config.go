package market

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"pxwatch/pkg/confkit"
)

const (
	// DefaultTimeout bounds a single Price call.
	DefaultTimeout = 10 * time.Second
)

// Config describes the price sources available to the application.
type Config struct {
	Default   string                     `yaml:"default"`
	Providers map[string]*ProviderConfig `yaml:"providers"`
}

// ProviderConfig represents configuration for a single price source.
type ProviderConfig struct {
	Type string `yaml:"type"`

	// URL is a template; {id} is replaced with the asset identifier.
	URL string `yaml:"url"`
	// Pattern is a regular expression whose first group captures a JSON object (scrape).
	Pattern string `yaml:"pattern"`
	// PricePath is a gjson path, also templated with {id}.
	PricePath string `yaml:"price_path"`

	APIKey       string `yaml:"api_key"`
	APIKeyHeader string `yaml:"api_key_header"`
	UserAgent    string `yaml:"user_agent"`

	TimeoutRaw     string        `yaml:"timeout"`
	Timeout        time.Duration `yaml:"-"`
	HTTPTimeoutRaw string        `yaml:"http_timeout"`
	HTTPTimeout    time.Duration `yaml:"-"`
	MaxAgeRaw      string        `yaml:"max_age"`
	MaxAge         time.Duration `yaml:"-"`
}

// ProviderBuilder constructs a Provider from configuration.
type ProviderBuilder func(name string, cfg *ProviderConfig) (Provider, error)

var (
	providerRegistry   = make(map[string]ProviderBuilder)
	providerRegistryMu sync.RWMutex
)

// RegisterProvider registers a price source constructor under typeName.
func RegisterProvider(typeName string, builder ProviderBuilder) {
	providerRegistryMu.Lock()
	defer providerRegistryMu.Unlock()
	providerRegistry[normaliseType(typeName)] = builder
}

// RegisteredTypes lists the registered provider types in sorted order.
func RegisteredTypes() []string {
	providerRegistryMu.RLock()
	defer providerRegistryMu.RUnlock()
	out := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func lookupProviderBuilder(typeName string) (ProviderBuilder, bool) {
	providerRegistryMu.RLock()
	defer providerRegistryMu.RUnlock()
	builder, ok := providerRegistry[normaliseType(typeName)]
	return builder, ok
}

func normaliseType(typeName string) string {
	return strings.ToLower(strings.TrimSpace(typeName))
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open market config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read market config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal market config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderConfig)
	}
	c.Default = strings.TrimSpace(c.Default)
	if c.Default == "" && len(c.Providers) == 1 {
		for name := range c.Providers {
			c.Default = name
		}
	}
	for name, provider := range c.Providers {
		if provider == nil {
			provider = &ProviderConfig{}
			c.Providers[name] = provider
		}
		provider.expandEnv()
		if err := provider.parseDurations(name); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProviderConfig) expandEnv() {
	p.Type = strings.TrimSpace(os.ExpandEnv(p.Type))
	p.URL = strings.TrimSpace(os.ExpandEnv(p.URL))
	p.APIKey = strings.TrimSpace(os.ExpandEnv(p.APIKey))
	p.APIKeyHeader = strings.TrimSpace(os.ExpandEnv(p.APIKeyHeader))
	p.UserAgent = strings.TrimSpace(os.ExpandEnv(p.UserAgent))
	p.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(p.TimeoutRaw))
	p.HTTPTimeoutRaw = strings.TrimSpace(os.ExpandEnv(p.HTTPTimeoutRaw))
	p.MaxAgeRaw = strings.TrimSpace(os.ExpandEnv(p.MaxAgeRaw))
	// Pattern and PricePath are left alone: "$" is meaningful in both.
	p.Pattern = strings.TrimSpace(p.Pattern)
	p.PricePath = strings.TrimSpace(p.PricePath)
}

func (p *ProviderConfig) parseDurations(name string) error {
	var err error
	if p.Timeout, err = parsePositiveDuration(name, "timeout", p.TimeoutRaw); err != nil {
		return err
	}
	if p.HTTPTimeout, err = parsePositiveDuration(name, "http_timeout", p.HTTPTimeoutRaw); err != nil {
		return err
	}
	if p.MaxAge, err = parsePositiveDuration(name, "max_age", p.MaxAgeRaw); err != nil {
		return err
	}
	return nil
}

func parsePositiveDuration(name, field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("market provider %s: invalid %s %q: %w", name, field, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("market provider %s: %s must be positive, got %s", name, field, d)
	}
	return d, nil
}

// EffectiveTimeout returns the configured per-call timeout or DefaultTimeout.
func (p *ProviderConfig) EffectiveTimeout() time.Duration {
	if p != nil && p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultTimeout
}

// Validate ensures the configuration is structurally sound.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("market config: providers cannot be empty")
	}
	if c.Default == "" {
		return fmt.Errorf("market config: default provider must be set when more than one provider is defined")
	}
	if _, ok := c.Providers[c.Default]; !ok {
		return fmt.Errorf("market config: default provider %q not defined", c.Default)
	}
	for name, provider := range c.Providers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("market config: provider name cannot be empty")
		}
		if err := provider.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProviderConfig) validate(name string) error {
	if p == nil {
		return fmt.Errorf("market config: provider %s is nil", name)
	}
	if strings.TrimSpace(p.Type) == "" {
		return fmt.Errorf("market config: provider %s must specify type", name)
	}
	if _, ok := lookupProviderBuilder(p.Type); !ok {
		return fmt.Errorf("market config: provider %s has unsupported type %q", name, p.Type)
	}
	return nil
}

// BuildProviders instantiates price sources according to configuration.
func (c *Config) BuildProviders() (map[string]Provider, error) {
	result := make(map[string]Provider, len(c.Providers))
	for name, providerCfg := range c.Providers {
		builder, ok := lookupProviderBuilder(providerCfg.Type)
		if !ok {
			return nil, fmt.Errorf("market provider %s: unsupported type %q", name, providerCfg.Type)
		}
		provider, err := builder(name, providerCfg)
		if err != nil {
			return nil, fmt.Errorf("market provider %s: %w", name, err)
		}
		result[name] = provider
	}
	return result, nil
}
