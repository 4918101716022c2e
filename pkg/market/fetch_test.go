package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name        string
		json        string
		want        float64
		errContains string
	}{
		{name: "number", json: `{"p":0.3}`, want: 0.3},
		{name: "numeric string", json: `{"p":"5.12"}`, want: 5.12},
		{name: "dollar string", json: `{"p":"$1,234.50"}`, want: 1234.5},
		{name: "missing", json: `{}`, errContains: "missing"},
		{name: "placeholder", json: `{"p":"N/A"}`, errContains: "not numeric"},
		{name: "null", json: `{"p":null}`, errContains: "non-numeric type"},
		{name: "object", json: `{"p":{"v":1}}`, errContains: "non-numeric type"},
		{name: "zero", json: `{"p":0}`, errContains: "not positive"},
		{name: "negative", json: `{"p":-2}`, errContains: "not positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrice(gjson.Get(tt.json, "p"))
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "yes" {
			http.Error(w, strings.Repeat("x", 1000), http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`ok`))
	}))
	defer server.Close()

	body, err := Get(context.Background(), server.Client(), server.URL, http.Header{"X-Test": {"yes"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))

	_, err = Get(context.Background(), server.Client(), server.URL, nil)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
	assert.LessOrEqual(t, len(statusErr.Body), snippetBytes+3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Get(ctx, server.Client(), server.URL, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestUnavailableWrapping(t *testing.T) {
	err := Unavailable("px", "boom %d", 1)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "px")

	again := UnavailableErr("px", err)
	assert.Equal(t, err, again)

	cause := errors.New("dial tcp: refused")
	wrapped := UnavailableErr("px", cause)
	require.ErrorIs(t, wrapped, ErrUnavailable)
	require.ErrorIs(t, wrapped, cause)
}

func TestExpandTemplate(t *testing.T) {
	assert.Equal(t, "https://x/currencies/not-pixel/", ExpandTemplate("https://x/currencies/{id}/", "not-pixel"))
	assert.Equal(t, "data.1.quote", ExpandTemplate("data.{id}.quote", "1"))
}
