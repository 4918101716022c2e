package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pxwatch/internal/config"
)

func writeConfig(t *testing.T, priceURL string) string {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("CHANNEL_ID", "@pxwatch")
	t.Setenv("PRICE_URL", priceURL)
	dir := t.TempDir()
	files := map[string]string{
		"pxwatch.yaml": `Assets:
  - ID: not-pixel
    Symbol: PX
    Flagship: true
    ReferencePrice: 0.30
  - ID: toncoin
    Symbol: TON
Market:
  File: market.yaml
Notifier:
  File: notifier.yaml
`,
		"market.yaml": `
providers:
  ticker:
    type: jsonapi
    url: ${PRICE_URL}/price/{id}
    price_path: usd
    timeout: 2s
`,
		"notifier.yaml": `
type: telegram
token: ${BOT_TOKEN}
channel: ${CHANNEL_ID}
`,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return filepath.Join(dir, "pxwatch.yaml")
}

func priceServer(t *testing.T, prices map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := prices[strings.TrimPrefix(r.URL.Path, "/price/")]
		if !ok {
			http.Error(w, "unknown", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCheckPrintsMessage(t *testing.T) {
	server := priceServer(t, map[string]string{
		"not-pixel": `{"usd":0.25}`,
		"toncoin":   `{"usd":5}`,
	})
	path := writeConfig(t, server.URL)

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"check", "-f", path, "--log-level", "error"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "$PX 0.2500 | -16.67% 🔻\n\n$TON 5.00 ⚪\n", out.String())
}

func TestCheckFailsWhenPriceUnavailable(t *testing.T) {
	server := priceServer(t, map[string]string{"not-pixel": `{"usd":0.25}`})
	path := writeConfig(t, server.URL)

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"check", "--config", path, "--log-level", "error"})

	err := root.Execute()
	require.ErrorIs(t, err, ErrPricesUnavailable)
	assert.Empty(t, out.String())
}

func TestConfigFlagFromEnv(t *testing.T) {
	t.Setenv("PXWATCH_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"check"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.yaml")
}

func TestConfigSummaryLines(t *testing.T) {
	assert.Equal(t, []string{"Configuration: <nil>"}, ConfigSummaryLines(nil))

	cfg := &config.Config{
		Assets: []config.AssetConf{
			{ID: "not-pixel", Symbol: "PX", Precision: 4, Flagship: true, ReferencePrice: 0.3, Provider: "cmc"},
		},
		Schedule: config.ScheduleConf{Mode: config.ScheduleInterval, Interval: 30_000_000_000},
		Message:  config.MessageConf{SymbolPrefix: "$"},
	}
	lines := strings.Join(ConfigSummaryLines(cfg), "\n")
	assert.Contains(t, lines, "Schedule: every 30s")
	assert.Contains(t, lines, "Redis price mirror: not configured")
	assert.Contains(t, lines, "Market config: not configured")
	assert.Contains(t, lines, "Asset $PX: id=not-pixel provider=cmc precision=4 flagship reference=0.3")
}
