// Package cmcstream answers price queries from the CoinMarketCap push feed.
// The websocket is opened lazily by the first Price call and a quote is only
// served while it is younger than the configured max age.
package cmcstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"github.com/zeromicro/go-zero/core/logx"

	"pxwatch/pkg/market"
)

const (
	defaultURL     = "wss://push.coinmarketcap.com/ws?device=web&client_source=coin_detail_page"
	defaultMaxAge  = 90 * time.Second
	readDeadline   = 60 * time.Second
	subscribeTopic = "main-site@crypto_price_15s@{}@detail"
)

type subscribeCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

type quote struct {
	price float64
	at    time.Time
}

// Provider keeps the latest pushed quote per CoinMarketCap numeric ID.
type Provider struct {
	name    string
	url     string
	maxAge  time.Duration
	timeout time.Duration
	dialer  *websocket.Dialer
	now     func() time.Time

	mu   sync.Mutex
	conn *websocket.Conn
	// gen changes on every Close so a dial that raced it is discarded.
	gen        uint64
	subscribed map[string]struct{}
	quotes     map[string]quote
	updated    chan struct{}
}

// Option configures a Provider.
type Option func(*Provider)

// WithURL overrides the websocket endpoint.
func WithURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.url = u
		}
	}
}

// WithMaxAge sets how old a pushed quote may be before it is unavailable.
func WithMaxAge(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.maxAge = d
		}
	}
}

// WithTimeout bounds each Price call, including the lazy dial.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// New constructs a push feed provider.
func New(name string, opts ...Option) *Provider {
	p := &Provider{
		name:       name,
		url:        defaultURL,
		maxAge:     defaultMaxAge,
		timeout:    market.DefaultTimeout,
		dialer:     websocket.DefaultDialer,
		now:        time.Now,
		subscribed: make(map[string]struct{}),
		quotes:     make(map[string]quote),
		updated:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func init() {
	market.RegisterProvider("cmcstream", func(name string, cfg *market.ProviderConfig) (market.Provider, error) {
		return New(name,
			WithURL(cfg.URL),
			WithMaxAge(cfg.MaxAge),
			WithTimeout(cfg.EffectiveTimeout()),
		), nil
	})
}

// Price implements market.Provider. It waits, within the call timeout, for a
// first quote when the asset was only just subscribed.
func (p *Provider) Price(ctx context.Context, assetID string) (float64, error) {
	assetID = strings.TrimSpace(assetID)
	if _, err := strconv.ParseUint(assetID, 10, 64); err != nil {
		return 0, market.Unavailable(assetID, "%s: asset id must be a numeric coinmarketcap id", p.name)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.ensureSubscribed(ctx, assetID); err != nil {
		return 0, market.UnavailableErr(assetID, fmt.Errorf("%s: %w", p.name, err))
	}
	for {
		price, fresh, wait := p.lookup(assetID)
		if fresh {
			return price, nil
		}
		select {
		case <-ctx.Done():
			return 0, market.Unavailable(assetID, "%s: no quote newer than %s", p.name, p.maxAge)
		case <-wait:
		}
	}
}

func (p *Provider) lookup(assetID string) (float64, bool, <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.quotes[assetID]
	if ok && p.now().Sub(q.at) <= p.maxAge {
		return q.price, true, nil
	}
	return 0, false, p.updated
}

// connect returns the live connection, dialing without holding p.mu so
// lookups and Close are not blocked by a slow handshake.
func (p *Provider) connect(ctx context.Context) (*websocket.Conn, error) {
	p.mu.Lock()
	conn, gen := p.conn, p.gen
	p.mu.Unlock()
	if conn != nil {
		return conn, nil
	}

	header := http.Header{}
	header.Set("Origin", "https://coinmarketcap.com")
	header.Set("User-Agent", market.DefaultUserAgent)
	header.Set("Cache-Control", "no-cache")
	dialed, _, err := p.dialer.DialContext(ctx, p.url, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.gen != gen:
		_ = dialed.Close()
		return nil, errors.New("websocket dial: provider closed")
	case p.conn != nil:
		// Another caller won the race.
		_ = dialed.Close()
		return p.conn, nil
	}
	p.conn = dialed
	p.subscribed = make(map[string]struct{})
	go p.readLoop(dialed)
	return dialed, nil
}

func (p *Provider) ensureSubscribed(ctx context.Context, assetID string) error {
	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != conn {
		return errors.New("websocket connection lost")
	}
	if _, ok := p.subscribed[assetID]; ok {
		return nil
	}

	ids := make([]string, 0, len(p.subscribed)+1)
	for id := range p.subscribed {
		ids = append(ids, id)
	}
	ids = append(ids, assetID)
	sort.Strings(ids)
	cmd := subscribeCommand{
		Method: "RSUBSCRIPTION",
		Params: []string{subscribeTopic, strings.Join(ids, ",")},
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteJSON(cmd); err != nil {
		p.dropConnLocked(conn)
		return fmt.Errorf("websocket subscribe: %w", err)
	}
	p.subscribed[assetID] = struct{}{}
	return nil
}

func (p *Provider) readLoop(conn *websocket.Conn) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logx.Errorf("cmcstream: read provider=%s err=%v", p.name, err)
			}
			p.mu.Lock()
			p.dropConnLocked(conn)
			p.mu.Unlock()
			return
		}
		p.handleMessage(payload)
	}
}

func (p *Provider) handleMessage(payload []byte) {
	id := gjson.GetBytes(payload, "d.id")
	if !id.Exists() {
		return
	}
	price, err := market.ParsePrice(gjson.GetBytes(payload, "d.p"))
	if err != nil {
		return
	}
	assetID := strconv.FormatInt(id.Int(), 10)

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subscribed[assetID]; !ok {
		return
	}
	p.quotes[assetID] = quote{price: price, at: p.now()}
	close(p.updated)
	p.updated = make(chan struct{})
}

// dropConnLocked forgets conn so the next Price call redials. Callers hold p.mu.
func (p *Provider) dropConnLocked(conn *websocket.Conn) {
	if p.conn != conn || conn == nil {
		return
	}
	_ = conn.Close()
	p.conn = nil
	p.subscribed = make(map[string]struct{})
}

// Close shuts down the websocket, if any.
func (p *Provider) Close() error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.gen++
	p.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}
