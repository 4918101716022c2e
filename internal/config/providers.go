package config

// Built-in price sources register themselves with the market package.
import (
	_ "pxwatch/pkg/market/exchanges/cmcstream"
	_ "pxwatch/pkg/market/exchanges/hyperliquid"
	_ "pxwatch/pkg/market/exchanges/jsonapi"
	_ "pxwatch/pkg/market/exchanges/scrape"
)
