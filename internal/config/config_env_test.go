package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pxwatch/pkg/confkit"
)

// Loads the shipped etc/pxwatch.yaml with the documented environment.
func TestShippedConfigLoads(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("CHANNEL_ID", "@pxwatch")
	t.Setenv("INITIAL_PX_PRICE", "0.30")

	path, err := confkit.ProjectPath("etc/pxwatch.yaml")
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.Assets)

	flagships := 0
	for _, a := range cfg.Assets {
		if a.Flagship {
			flagships++
			assert.InDelta(t, 0.30, a.ReferencePrice, 1e-12)
		}
	}
	assert.Equal(t, 1, flagships)
	assert.Equal(t, "telegram", cfg.Notifier.Value.Type)
	providers, err := cfg.Market.Value.BuildProviders()
	require.NoError(t, err)
	assert.NotEmpty(t, providers)
}
