package hyperliquid

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"
)

// Replays a recorded allMids call. Skips when the cassette is absent unless
// RECORD_CASSETTES=1.
func TestProvider_Price_Recorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "hyperliquid_all_mids")
	if _, err := os.Stat(cassette + ".yaml"); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s", cassette)
		}
		err := os.MkdirAll(filepath.Dir(cassette), 0o755)
		assert.NoError(t, err, "mkdir cassettes dir should succeed")
	}

	r, err := recorder.New(cassette)
	assert.NoError(t, err, "recorder.New should not error")
	defer func() { _ = r.Stop() }()

	provider := NewProvider("hl", WithClientOptions(WithHTTPClient(&http.Client{Transport: r})))
	price, err := provider.Price(context.Background(), "btc")
	assert.NoError(t, err, "Price should not error")
	assert.Greater(t, price, 0.0, "mid price should be positive")
}
