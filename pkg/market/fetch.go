package market

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	maxBodyBytes = 8 << 20
	snippetBytes = 256

	// DefaultUserAgent is sent by scraping providers; coinmarketcap.com
	// rejects the Go default.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// Get performs a GET and returns the body of a 2xx response.
func Get(ctx context.Context, hc *http.Client, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet(body)}
	}
	return body, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > snippetBytes {
		return s[:snippetBytes] + "..."
	}
	return s
}

// ParsePrice coerces a JSON value (number or numeric string) into a positive,
// finite price.
func ParsePrice(v gjson.Result) (float64, error) {
	if !v.Exists() {
		return 0, errors.New("price field missing")
	}
	var (
		price float64
		err   error
	)
	switch v.Type {
	case gjson.Number:
		price = v.Num
	case gjson.String:
		raw := strings.TrimSpace(v.Str)
		raw = strings.TrimPrefix(raw, "$")
		raw = strings.ReplaceAll(raw, ",", "")
		price, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("price %q is not numeric", v.Str)
		}
	default:
		return 0, fmt.Errorf("price field has non-numeric type %s", v.Type)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, fmt.Errorf("price %v is not positive", price)
	}
	return price, nil
}

// ExpandTemplate substitutes {id} in tmpl with assetID.
func ExpandTemplate(tmpl, assetID string) string {
	return strings.ReplaceAll(tmpl, "{id}", assetID)
}
