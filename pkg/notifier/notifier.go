// Package notifier delivers formatted price messages to a single messaging
// channel. Implementations are selected by type from etc/notifier.yaml.
package notifier

import (
	"context"
	"errors"
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

// DefaultTimeout bounds a single Send.
const DefaultTimeout = 10 * time.Second

// ErrThrottled is returned when a send is dropped by the rate limiter.
var ErrThrottled = errors.New("notifier: send throttled")

// Service posts one text message.
type Service interface {
	Send(ctx context.Context, text string) error
}

// Config describes the configured delivery channel.
type Config struct {
	Type      string `yaml:"type"`
	Token     string `yaml:"token"`
	Channel   string `yaml:"channel"`
	ParseMode string `yaml:"parse_mode"`
	// BaseURL overrides the vendor API root (tests, self-hosted gateways).
	BaseURL string `yaml:"base_url"`

	TimeoutRaw     string        `yaml:"timeout"`
	Timeout        time.Duration `yaml:"-"`
	MinIntervalRaw string        `yaml:"min_interval"`
	MinInterval    time.Duration `yaml:"-"`
	Burst          int           `yaml:"burst"`
}

// Builder constructs a Service from configuration.
type Builder func(cfg *Config) (Service, error)

type registration struct {
	build           Builder
	channelOptional bool
}

var (
	registry   = make(map[string]registration)
	registryMu sync.RWMutex
)

// Register makes a notifier type available to configuration. Types whose
// channel is implied by the token pass channelOptional.
func Register(typeName string, channelOptional bool, build Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[normaliseType(typeName)] = registration{build: build, channelOptional: channelOptional}
}

// RegisteredTypes lists the registered notifier types in sorted order.
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func lookup(typeName string) (registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[normaliseType(typeName)]
	return reg, ok
}

func normaliseType(typeName string) string {
	return strings.ToLower(strings.TrimSpace(typeName))
}

// LoadConfig reads notifier configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open notifier config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read notifier config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal notifier config: %w", err)
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
	c.Type = strings.TrimSpace(os.ExpandEnv(c.Type))
	c.Token = strings.TrimSpace(os.ExpandEnv(c.Token))
	c.Channel = strings.TrimSpace(os.ExpandEnv(c.Channel))
	c.ParseMode = strings.TrimSpace(os.ExpandEnv(c.ParseMode))
	c.BaseURL = strings.TrimSpace(os.ExpandEnv(c.BaseURL))
	var err error
	if c.Timeout, err = parseDuration("timeout", os.ExpandEnv(c.TimeoutRaw)); err != nil {
		return err
	}
	if c.MinInterval, err = parseDuration("min_interval", os.ExpandEnv(c.MinIntervalRaw)); err != nil {
		return err
	}
	return nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("notifier config: invalid %s %q: %w", field, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("notifier config: %s must be positive, got %s", field, d)
	}
	return d, nil
}

// EffectiveTimeout returns the configured send timeout or DefaultTimeout.
func (c *Config) EffectiveTimeout() time.Duration {
	if c != nil && c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// Validate ensures the type is known and credentials are present.
func (c *Config) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("notifier config: type must be set")
	}
	reg, ok := lookup(c.Type)
	if !ok {
		return fmt.Errorf("notifier config: unsupported type %q", c.Type)
	}
	if c.Token == "" {
		return fmt.Errorf("notifier config: %s requires token", c.Type)
	}
	if c.Channel == "" && !reg.channelOptional {
		return fmt.Errorf("notifier config: %s requires channel", c.Type)
	}
	if c.Burst < 0 {
		return fmt.Errorf("notifier config: burst cannot be negative")
	}
	return nil
}

// Build instantiates the configured Service, throttled when min_interval is set.
func (c *Config) Build() (Service, error) {
	reg, ok := lookup(c.Type)
	if !ok {
		return nil, fmt.Errorf("notifier: unsupported type %q", c.Type)
	}
	svc, err := reg.build(c)
	if err != nil {
		return nil, fmt.Errorf("notifier %s: %w", c.Type, err)
	}
	if c.MinInterval > 0 {
		svc = Throttle(svc, c.MinInterval, c.Burst)
	}
	return svc, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d)
}
