package svc

import (
	"errors"
	"fmt"
	"io"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"

	cachekeys "pxwatch/internal/cache"
	"pxwatch/internal/config"
	"pxwatch/internal/metrics"
	marketpersist "pxwatch/internal/persistence/market"
	marketpkg "pxwatch/pkg/market"
	"pxwatch/pkg/message"
	notifierpkg "pxwatch/pkg/notifier"
	"pxwatch/pkg/poller"
)

// Options adjust wiring for the command being run.
type Options struct {
	// DryRun replaces the configured notifier with one that only logs.
	DryRun bool
	// Out receives dry-run messages; nil keeps them in the log only.
	Out io.Writer
}

type ServiceContext struct {
	Config *config.Config

	MarketProviders map[string]marketpkg.Provider
	Notifier        notifierpkg.Service
	Assets          []poller.Asset
	Metrics         *metrics.Loop
	PriceMirror     *marketpersist.Service
	Poller          *poller.Poller
}

func NewServiceContext(c *config.Config, opts Options) (*ServiceContext, error) {
	if c == nil || c.Market.Value == nil || c.Notifier.Value == nil {
		return nil, errors.New("svc: config is not fully loaded")
	}
	svc := &ServiceContext{
		Config:  c,
		Metrics: metrics.NewLoop(),
	}

	providers, err := c.Market.Value.BuildProviders()
	if err != nil {
		return nil, fmt.Errorf("build market providers: %w", err)
	}
	svc.MarketProviders = providers

	for _, a := range c.Assets {
		name := c.ProviderFor(a)
		provider, ok := providers[name]
		if !ok {
			svc.Close()
			return nil, fmt.Errorf("asset %s references unknown market provider %s", a.ID, name)
		}
		svc.Assets = append(svc.Assets, poller.Asset{
			ID:             a.ID,
			Symbol:         c.DisplaySymbol(a),
			Provider:       provider,
			ProviderName:   name,
			Precision:      a.Precision,
			Flagship:       a.Flagship,
			ReferencePrice: a.ReferencePrice,
		})
	}

	if opts.DryRun {
		svc.Notifier = notifierpkg.NewLog(opts.Out)
	} else {
		n, err := c.Notifier.Value.Build()
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("build notifier: %w", err)
		}
		svc.Notifier = n
	}

	if c.RedisEnabled() {
		rds, err := redis.NewRedis(c.Redis)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("connect redis %s: %w", c.Redis.Host, err)
		}
		svc.PriceMirror = marketpersist.NewService(rds, cachekeys.PriceTTL(c.TTL))
	}

	pollerOpts := []poller.Option{
		poller.WithSchedule(scheduleFor(c.Schedule)),
		poller.WithBackoff(c.Schedule.Backoff),
		poller.WithFetchTimeout(c.Schedule.FetchTimeout),
		poller.WithFormatter(message.NewFormatter(c.MessageStyle())),
		poller.WithMetrics(svc.Metrics),
	}
	if svc.PriceMirror != nil {
		pollerOpts = append(pollerOpts, poller.WithPersistence(svc.PriceMirror))
	}
	p, err := poller.New(svc.Assets, svc.Notifier, pollerOpts...)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.Poller = p
	return svc, nil
}

func scheduleFor(s config.ScheduleConf) poller.Schedule {
	if s.Mode == config.ScheduleInterval {
		return poller.Every{Interval: s.Interval}
	}
	return poller.MinuteBoundary{Offset: s.Offset}
}

// Close releases providers holding connections.
func (s *ServiceContext) Close() {
	for name, provider := range s.MarketProviders {
		closer, ok := provider.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			logx.Errorf("svc: close market provider=%s err=%v", name, err)
		}
	}
}
