package marketpersist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"

	cachekeys "pxwatch/internal/cache"
	"pxwatch/pkg/market"
)

var _ market.Persistence = (*Service)(nil)

// Store is the subset of the go-zero Redis client the mirror writes through.
type Store interface {
	SetexCtx(ctx context.Context, key, value string, seconds int) error
}

var _ Store = (*redis.Redis)(nil)

// Service mirrors the latest successful cycle into Redis so other processes
// can read current prices. It keeps no history.
type Service struct {
	store Store
	ttl   time.Duration
}

// NewService returns nil when store is nil or ttl disables the mirror.
func NewService(store Store, ttl time.Duration) *Service {
	if store == nil || ttl <= 0 {
		return nil
	}
	return &Service{store: store, ttl: ttl}
}

type pricePayload struct {
	AssetID  string  `json:"asset_id"`
	Symbol   string  `json:"symbol"`
	Provider string  `json:"provider,omitempty"`
	Price    float64 `json:"price"`
	TsMs     int64   `json:"ts"`
}

// RecordPrices writes one key per asset and provider plus a cycle snapshot.
// Every key is attempted; failures are logged and joined.
func (s *Service) RecordPrices(ctx context.Context, observations []market.Observation) error {
	if s == nil || len(observations) == 0 {
		return nil
	}
	seconds := int(math.Ceil(s.ttl.Seconds()))
	var errs []error
	snapshot := make(map[string]pricePayload, len(observations))
	for _, obs := range observations {
		if strings.TrimSpace(obs.AssetID) == "" {
			continue
		}
		payload := pricePayload{
			AssetID:  obs.AssetID,
			Symbol:   obs.Symbol,
			Provider: obs.Provider,
			Price:    obs.Price,
			TsMs:     obs.At.UTC().UnixMilli(),
		}
		snapshot[obs.AssetID] = payload
		keys := []string{cachekeys.PriceLatestKey(obs.AssetID)}
		if obs.Provider != "" {
			keys = append(keys, cachekeys.PriceLatestByProviderKey(obs.Provider, obs.AssetID))
		}
		for _, key := range keys {
			if err := s.set(ctx, key, payload, seconds); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := s.set(ctx, cachekeys.CycleSnapshotKey(), snapshot, seconds); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) set(ctx context.Context, key string, v any, seconds int) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marketpersist: marshal key=%s: %w", key, err)
	}
	if err := s.store.SetexCtx(ctx, key, string(raw), seconds); err != nil {
		logx.WithContext(ctx).Errorf("marketpersist: cache price key=%s err=%v", key, err)
		return fmt.Errorf("marketpersist: set %s: %w", key, err)
	}
	return nil
}
