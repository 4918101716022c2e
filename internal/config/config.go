package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"

	"pxwatch/pkg/confkit"
	marketpkg "pxwatch/pkg/market"
	"pxwatch/pkg/message"
	notifierpkg "pxwatch/pkg/notifier"
)

const (
	ScheduleBoundary = "boundary"
	ScheduleInterval = "interval"

	DefaultOffset       = 59 * time.Second
	DefaultSymbolPrefix = "$"

	maxPrecision = 18
)

// envDefaults are applied before ${VAR} expansion when the variable is unset.
var envDefaults = map[string]string{
	"INITIAL_PX_PRICE": "0.30",
}

type AssetConf struct {
	ID     string
	Symbol string
	// Provider names an entry in the market config; empty means its default.
	Provider string `json:",optional"`
	// Precision is the number of price decimals; -1 picks 4 for the flagship
	// and 2 otherwise.
	Precision      int     `json:",default=-1"`
	Flagship       bool    `json:",optional"`
	ReferencePrice float64 `json:",optional"`
}

type ScheduleConf struct {
	Mode         string        `json:",default=boundary,options=boundary|interval"`
	Offset       time.Duration `json:",default=59s"`
	Interval     time.Duration `json:",default=1m"`
	Backoff      time.Duration `json:",default=5s"`
	FetchTimeout time.Duration `json:",default=10s"`
}

type MessageConf struct {
	Style string `json:",default=plain"`
	// SymbolPrefix is prepended to every asset symbol. Symbols are stored
	// bare because ${VAR} expansion would swallow a literal "$PX".
	SymbolPrefix string `json:",default=$"`
}

type MetricsConf struct {
	// Addr enables the Prometheus endpoint, e.g. ":9101".
	Addr string `json:",optional"`
	Path string `json:",default=/metrics"`
}

type CacheTTL struct {
	Price int `json:",default=300"` // seconds
}

type Config struct {
	Name     string          `json:",default=pxwatch"`
	Log      logx.LogConf    `json:",optional"`
	Assets   []AssetConf     `json:",optional"`
	Schedule ScheduleConf    `json:",optional"`
	Message  MessageConf     `json:",optional"`
	Metrics  MetricsConf     `json:",optional"`
	Redis    redis.RedisConf `json:",optional"`
	TTL      CacheTTL        `json:",optional"`

	Market   confkit.Section[marketpkg.Config]   `json:",optional"`
	Notifier confkit.Section[notifierpkg.Config] `json:",optional"`

	mainPath string
	baseDir  string
}

func Load(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	applyEnvDefaults()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %s: %w", path, err)
	}

	var cfg Config
	if err := conf.Load(absPath, &cfg, conf.UseEnv()); err != nil {
		return nil, fmt.Errorf("load config %s: %w", absPath, err)
	}

	cfg.mainPath = absPath
	cfg.baseDir = filepath.Dir(absPath)

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := cfg.hydrateSections(); err != nil {
		return nil, err
	}
	if err := cfg.validateBindings(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvDefaults() {
	for key, value := range envDefaults {
		if _, ok := os.LookupEnv(key); !ok {
			_ = os.Setenv(key, value)
		}
	}
}

// applyDefaults fills zero values left by sections omitted from the file.
// go-zero fills tag defaults only for sections that are present, so an empty
// Mode or Style marks an absent section.
func (c *Config) applyDefaults() {
	if c.Schedule.Mode == "" {
		c.Schedule.Mode = ScheduleBoundary
		c.Schedule.Offset = DefaultOffset
	}
	if c.Schedule.Interval == 0 {
		c.Schedule.Interval = time.Minute
	}
	if c.Schedule.Backoff == 0 {
		c.Schedule.Backoff = 5 * time.Second
	}
	if c.Schedule.FetchTimeout == 0 {
		c.Schedule.FetchTimeout = 10 * time.Second
	}
	if c.Message.Style == "" {
		c.Message.Style = "plain"
		c.Message.SymbolPrefix = DefaultSymbolPrefix
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.TTL.Price == 0 {
		c.TTL.Price = 300
	}
}

// validate checks everything that does not need the section files. It is
// unexported so conf.Load does not run it before applyDefaults.
func (c *Config) validate() error {
	if err := c.validateAssets(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if _, err := message.ParseStyle(c.Message.Style); err != nil {
		return fmt.Errorf("config: message.style: %w", err)
	}
	if c.TTL.Price <= 0 {
		return errors.New("config: ttl.price must be positive")
	}
	if strings.TrimSpace(c.Market.File) == "" {
		return errors.New("config: market.file is required")
	}
	if strings.TrimSpace(c.Notifier.File) == "" {
		return errors.New("config: notifier.file is required")
	}
	return nil
}

func (c *Config) validateAssets() error {
	if len(c.Assets) == 0 {
		return errors.New("config: at least one asset is required")
	}
	seen := make(map[string]struct{}, len(c.Assets))
	flagships := 0
	for i := range c.Assets {
		a := &c.Assets[i]
		a.ID = strings.TrimSpace(a.ID)
		a.Symbol = strings.TrimSpace(a.Symbol)
		a.Provider = strings.TrimSpace(a.Provider)
		if a.ID == "" {
			return fmt.Errorf("config: assets[%d].id is required", i)
		}
		if a.Symbol == "" {
			return fmt.Errorf("config: asset %s: symbol is required", a.ID)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("config: asset %s listed twice", a.ID)
		}
		seen[a.ID] = struct{}{}
		if a.Precision > maxPrecision {
			return fmt.Errorf("config: asset %s: precision %d exceeds %d", a.ID, a.Precision, maxPrecision)
		}
		if a.Precision < 0 {
			a.Precision = message.DefaultPrecision
			if a.Flagship {
				a.Precision = message.FlagshipPrecision
			}
		}
		if a.Flagship {
			flagships++
			if a.ReferencePrice <= 0 {
				return fmt.Errorf("config: flagship asset %s needs a positive referencePrice", a.ID)
			}
		}
	}
	if flagships != 1 {
		return fmt.Errorf("config: exactly one flagship asset is required, got %d", flagships)
	}
	return nil
}

func (c *Config) validateSchedule() error {
	s := c.Schedule
	switch s.Mode {
	case ScheduleBoundary:
		if s.Offset < 0 || s.Offset >= time.Minute {
			return fmt.Errorf("config: schedule.offset must be within [0s, 1m), got %s", s.Offset)
		}
	case ScheduleInterval:
		if s.Interval <= 0 {
			return errors.New("config: schedule.interval must be positive")
		}
	default:
		return fmt.Errorf("config: schedule.mode must be boundary or interval, got %q", s.Mode)
	}
	if s.Backoff <= 0 {
		return errors.New("config: schedule.backoff must be positive")
	}
	if s.FetchTimeout <= 0 {
		return errors.New("config: schedule.fetchTimeout must be positive")
	}
	return nil
}

func (c *Config) hydrateSections() error {
	base := c.baseDir
	if err := c.Market.Hydrate(base, marketpkg.LoadConfig); err != nil {
		return fmt.Errorf("load market config: %w", err)
	}
	if err := c.Notifier.Hydrate(base, notifierpkg.LoadConfig); err != nil {
		return fmt.Errorf("load notifier config: %w", err)
	}
	return nil
}

// validateBindings checks that every asset points at a defined price source.
func (c *Config) validateBindings() error {
	if c.Market.Value == nil {
		return errors.New("config: market section not loaded")
	}
	if c.Notifier.Value == nil {
		return errors.New("config: notifier section not loaded")
	}
	for _, a := range c.Assets {
		name := c.ProviderFor(a)
		if _, ok := c.Market.Value.Providers[name]; !ok {
			return fmt.Errorf("config: asset %s uses undefined market provider %q", a.ID, name)
		}
	}
	return nil
}

// ProviderFor returns the market provider name serving a.
func (c *Config) ProviderFor(a AssetConf) string {
	if a.Provider != "" {
		return a.Provider
	}
	if c.Market.Value != nil {
		return c.Market.Value.Default
	}
	return ""
}

// DisplaySymbol returns the symbol as it appears in messages.
func (c *Config) DisplaySymbol(a AssetConf) string {
	return c.Message.SymbolPrefix + a.Symbol
}

// MessageStyle returns the parsed formatter style.
func (c *Config) MessageStyle() message.Style {
	style, _ := message.ParseStyle(c.Message.Style)
	return style
}

// RedisEnabled reports whether the price mirror is configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Host) != ""
}

func (c *Config) MainPath() string {
	return c.mainPath
}

func (c *Config) BaseDir() string {
	return c.baseDir
}
