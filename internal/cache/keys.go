package cache

import (
	"strings"
	"time"

	"pxwatch/internal/config"
)

// Namespace is the Redis key prefix for pxwatch.
const Namespace = "pxwatch"

const defaultPriceTTL = 5 * time.Minute

// PriceTTL converts the configured price TTL (seconds) into a duration.
// Zero falls back to five minutes; negative disables expiry-bound writes.
func PriceTTL(cfg config.CacheTTL) time.Duration {
	switch {
	case cfg.Price < 0:
		return 0
	case cfg.Price == 0:
		return defaultPriceTTL
	}
	return time.Duration(cfg.Price) * time.Second
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// PriceLatestKey holds the latest cycle price of one asset.
func PriceLatestKey(assetID string) string {
	return formatKey("price", "latest", assetID)
}

// PriceLatestByProviderKey scopes the latest price by price source.
func PriceLatestByProviderKey(provider, assetID string) string {
	return formatKey("price", "latest", provider, assetID)
}

// CycleSnapshotKey holds every asset price of the latest successful cycle.
func CycleSnapshotKey() string {
	return formatKey("cycle", "latest")
}
