package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigTelegram(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("CHANNEL_ID", "@pxchannel")

	cfg, err := LoadConfigFromReader(strings.NewReader(`
type: telegram
token: ${BOT_TOKEN}
channel: ${CHANNEL_ID}
parse_mode: Markdown
timeout: 5s
min_interval: 2s
burst: 3
`))
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Token)
	assert.Equal(t, "@pxchannel", cfg.Channel)
	assert.Equal(t, 5*time.Second, cfg.EffectiveTimeout())
	assert.Equal(t, 2*time.Second, cfg.MinInterval)

	svc, err := cfg.Build()
	require.NoError(t, err)
	throttled, ok := svc.(*Throttled)
	require.True(t, ok, "min_interval should wrap the service")
	tg, ok := throttled.next.(*Telegram)
	require.True(t, ok)
	assert.Equal(t, "Markdown", tg.parseMode)
	assert.Equal(t, 5*time.Second, tg.timeout)
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Setenv("EMPTY_TOKEN", "")
	tests := []struct {
		name        string
		yaml        string
		errContains string
	}{
		{name: "no type", yaml: "token: x\n", errContains: "type must be set"},
		{name: "unknown type", yaml: "type: carrier-pigeon\ntoken: x\n", errContains: "unsupported"},
		{name: "missing token", yaml: "type: telegram\ntoken: ${EMPTY_TOKEN}\nchannel: c\n", errContains: "requires token"},
		{name: "missing channel", yaml: "type: slack\ntoken: x\n", errContains: "requires channel"},
		{name: "bad timeout", yaml: "type: telegram\ntoken: x\nchannel: c\ntimeout: later\n", errContains: "invalid timeout"},
		{name: "negative burst", yaml: "type: telegram\ntoken: x\nchannel: c\nburst: -1\n", errContains: "burst"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFromReader(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestPushbulletChannelOptional(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader("type: pushbullet\ntoken: o.abc\n"))
	require.NoError(t, err)
	svc, err := cfg.Build()
	require.NoError(t, err)
	assert.IsType(t, &Pushbullet{}, svc)
}

func TestRegisteredTypes(t *testing.T) {
	assert.Equal(t, []string{"pushbullet", "slack", "telegram"}, RegisteredTypes())
}

func TestTelegramSend(t *testing.T) {
	var got url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
	}))
	defer server.Close()

	tg := NewTelegram("123:abc", "-100200", WithTelegramBaseURL(server.URL), WithParseMode("Markdown"))
	require.NoError(t, tg.Send(context.Background(), "$PX 0.2500 | -16.67% 🔻"))
	assert.Equal(t, "-100200", got.Get("chat_id"))
	assert.Equal(t, "$PX 0.2500 | -16.67% 🔻", got.Get("text"))
	assert.Equal(t, "Markdown", got.Get("parse_mode"))
}

func TestTelegramSendToChannelUsername(t *testing.T) {
	var got url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":8}}`))
	}))
	defer server.Close()

	tg := NewTelegram("123:abc", "@pxwatch", WithTelegramBaseURL(server.URL+"/"))
	require.NoError(t, tg.Send(context.Background(), "hello"))
	assert.Equal(t, "@pxwatch", got.Get("chat_id"))
	assert.Empty(t, got.Get("parse_mode"))
}

func TestTelegramSendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer server.Close()

	tg := NewTelegram("secret-token", "nope", WithTelegramBaseURL(server.URL))
	err := tg.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestTelegramSendTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	tg := NewTelegram("secret-token", "c", WithTelegramBaseURL(server.URL), WithTelegramTimeout(50*time.Millisecond))
	start := time.Now()
	err := tg.Send(context.Background(), "hello")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotContains(t, err.Error(), "secret-token")
	assert.Less(t, time.Since(start), time.Second)
}

func TestSlackSend(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "C123", r.PostForm.Get("channel"))
		assert.Equal(t, "$TON 5.00 ⚪", r.PostForm.Get("text"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100"}`))
	}))
	defer server.Close()

	s := NewSlack("xoxb-test", "C123", server.URL, time.Second)
	require.NoError(t, s.Send(context.Background(), "$TON 5.00 ⚪"))
	assert.EqualValues(t, 1, calls.Load())
}

func TestSlackSendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer server.Close()

	s := NewSlack("xoxb-test", "C404", server.URL, time.Second)
	err := s.Send(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestPushbulletSend(t *testing.T) {
	var got pushbulletRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/pushes", r.URL.Path)
		assert.Equal(t, "o.token", r.Header.Get("Access-Token"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewPushbullet("o.token", "pxwatch", server.URL, time.Second)
	require.NoError(t, p.Send(context.Background(), "$PX 0.3000 | 0.00% ⚪\n\n$TON 5.00 ⚪"))
	assert.Equal(t, "note", got.Type)
	assert.Equal(t, "$PX 0.3000 | 0.00% ⚪", got.Title)
	assert.Equal(t, "pxwatch", got.ChannelTag)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer failing.Close()
	err := NewPushbullet("bad", "", failing.URL, time.Second).Send(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

type countingService struct {
	sent []string
	err  error
}

func (c *countingService) Send(_ context.Context, text string) error {
	c.sent = append(c.sent, text)
	return c.err
}

func TestThrottle(t *testing.T) {
	next := &countingService{}
	svc := Throttle(next, time.Hour, 2)

	require.NoError(t, svc.Send(context.Background(), "a"))
	require.NoError(t, svc.Send(context.Background(), "b"))
	err := svc.Send(context.Background(), "c")
	require.True(t, errors.Is(err, ErrThrottled))
	assert.Equal(t, []string{"a", "b"}, next.sent)
}

func TestLogEchoes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewLog(&buf).Send(context.Background(), "$TON 5.00 ⚪"))
	assert.Equal(t, "$TON 5.00 ⚪\n", buf.String())
	require.NoError(t, NewLog(nil).Send(context.Background(), "quiet"))
}
