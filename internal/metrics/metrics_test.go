package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopCollectors(t *testing.T) {
	l := NewLoop()
	l.CycleCompleted("sent")
	l.CycleCompleted("sent")
	l.CycleCompleted("fetch_failed")
	l.FetchFailed("$TON")
	l.PriceObserved("$PX", 0.25)

	assert.Equal(t, 2.0, testutil.ToFloat64(l.cycles.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.cycles.WithLabelValues("fetch_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.fetchFailures.WithLabelValues("$TON")))
	assert.Equal(t, 0.25, testutil.ToFloat64(l.lastPrice.WithLabelValues("$PX")))
	assert.Positive(t, testutil.ToFloat64(l.lastCycle))
}

func TestHandler(t *testing.T) {
	l := NewLoop()
	l.PriceObserved("$TON", 5)

	rec := httptest.NewRecorder()
	l.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `pxwatch_market_price_usd{symbol="$TON"} 5`)
	assert.Contains(t, string(body), "go_goroutines")
}
