// Package poller drives the fetch, compare, format and send cycle.
//
// A cycle fetches every tracked asset in order. When any asset is unavailable
// the cycle is abandoned: nothing is sent and the previous-cycle state is left
// as it was. Otherwise the message is built, sent if it differs from the last
// delivered one, and the observed prices become the new previous state.
package poller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"pxwatch/pkg/market"
	"pxwatch/pkg/message"
	"pxwatch/pkg/notifier"
	"pxwatch/pkg/trend"
)

const (
	DefaultBackoff      = 5 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// Asset is one tracked asset bound to its price source.
type Asset struct {
	ID           string
	Symbol       string
	Provider     market.Provider
	ProviderName string
	Precision    int
	// Flagship assets report change against ReferencePrice; others against
	// the previous cycle.
	Flagship       bool
	ReferencePrice float64
}

// State is carried from one successful cycle to the next.
type State struct {
	Previous    map[string]float64
	LastMessage string
}

// Outcome summarises how a cycle ended.
type Outcome int

const (
	OutcomeFetchFailed Outcome = iota
	OutcomeSent
	OutcomeUnchanged
	OutcomeSendFailed
	OutcomeThrottled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFetchFailed:
		return "fetch_failed"
	case OutcomeSent:
		return "sent"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeSendFailed:
		return "send_failed"
	case OutcomeThrottled:
		return "throttled"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// CycleResult reports one pass of the loop.
type CycleResult struct {
	Outcome      Outcome
	Message      string
	Observations []market.Observation
	// Err is the fetch or send error, if any.
	Err error
}

// Metrics receives loop events. Implementations must be safe to call from the
// loop goroutine; they are never called concurrently by the poller.
type Metrics interface {
	CycleCompleted(outcome string)
	FetchFailed(symbol string)
	PriceObserved(symbol string, price float64)
}

type nopMetrics struct{}

func (nopMetrics) CycleCompleted(string) {}
func (nopMetrics) FetchFailed(string) {}
func (nopMetrics) PriceObserved(string, float64) {}

// Poller owns the previous-cycle state. It is not safe for concurrent use.
type Poller struct {
	assets       []Asset
	notifier     notifier.Service
	formatter    *message.Formatter
	schedule     Schedule
	backoff      time.Duration
	fetchTimeout time.Duration
	persistence  market.Persistence
	metrics      Metrics
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) bool

	state State
}

// Option configures a Poller.
type Option func(*Poller)

// WithSchedule sets the wake-up schedule. Defaults to MinuteBoundary at :59.
func WithSchedule(s Schedule) Option {
	return func(p *Poller) {
		if s != nil {
			p.schedule = s
		}
	}
}

// WithBackoff sets the wait after a failed fetch.
func WithBackoff(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.backoff = d
		}
	}
}

// WithFetchTimeout bounds each asset's fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.fetchTimeout = d
		}
	}
}

// WithFormatter overrides the plain text formatter.
func WithFormatter(f *message.Formatter) Option {
	return func(p *Poller) {
		if f != nil {
			p.formatter = f
		}
	}
}

// WithPersistence mirrors each successful cycle's prices.
func WithPersistence(ps market.Persistence) Option {
	return func(p *Poller) { p.persistence = ps }
}

// WithMetrics installs a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(p *Poller) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithClock replaces time.Now and the context-aware sleep, for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) bool) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// New validates the asset list and returns a Poller with empty state.
func New(assets []Asset, svc notifier.Service, opts ...Option) (*Poller, error) {
	if len(assets) == 0 {
		return nil, errors.New("poller: at least one asset is required")
	}
	if svc == nil {
		return nil, errors.New("poller: notifier is required")
	}
	seen := make(map[string]struct{}, len(assets))
	flagships := 0
	for _, a := range assets {
		if a.ID == "" {
			return nil, fmt.Errorf("poller: asset %q has empty id", a.Symbol)
		}
		if a.Provider == nil {
			return nil, fmt.Errorf("poller: asset %s has no provider", a.ID)
		}
		if _, dup := seen[a.ID]; dup {
			return nil, fmt.Errorf("poller: duplicate asset %s", a.ID)
		}
		seen[a.ID] = struct{}{}
		if a.Flagship {
			flagships++
		}
	}
	if flagships > 1 {
		return nil, fmt.Errorf("poller: %d flagship assets configured, at most one allowed", flagships)
	}

	p := &Poller{
		assets:       append([]Asset(nil), assets...),
		notifier:     svc,
		formatter:    message.NewFormatter(message.Plain),
		schedule:     MinuteBoundary{Offset: DefaultMinuteOffset},
		backoff:      DefaultBackoff,
		fetchTimeout: DefaultFetchTimeout,
		metrics:      nopMetrics{},
		now:          time.Now,
		sleep:        sleepWithContext,
		state:        State{Previous: make(map[string]float64, len(assets))},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// State returns a copy of the previous-cycle state.
func (p *Poller) State() State {
	prev := make(map[string]float64, len(p.state.Previous))
	for k, v := range p.state.Previous {
		prev[k] = v
	}
	return State{Previous: prev, LastMessage: p.state.LastMessage}
}

// Run waits for each boundary and runs a cycle, backing off after a failed
// fetch, until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	logx.WithContext(ctx).Infof("poller: started assets=%d backoff=%s", len(p.assets), p.backoff)
	for {
		next := p.schedule.Next(p.now())
		if !p.sleep(ctx, next.Sub(p.now())) {
			logx.WithContext(ctx).Info("poller: stopped")
			return nil
		}
		res := p.RunCycle(ctx)
		if res.Outcome != OutcomeFetchFailed {
			continue
		}
		if ctx.Err() != nil {
			logx.WithContext(ctx).Info("poller: stopped")
			return nil
		}
		logx.WithContext(ctx).Infof("poller: backoff wait=%s", p.backoff)
		if !p.sleep(ctx, p.backoff) {
			logx.WithContext(ctx).Info("poller: stopped")
			return nil
		}
	}
}

// RunCycle performs one fetch, compute and send pass.
func (p *Poller) RunCycle(ctx context.Context) CycleResult {
	observations, err := p.fetchAll(ctx)
	if err != nil {
		p.metrics.CycleCompleted(OutcomeFetchFailed.String())
		return CycleResult{Outcome: OutcomeFetchFailed, Err: err}
	}

	text := p.formatter.Format(p.buildLines(ctx, observations))
	res := CycleResult{Message: text, Observations: observations}
	if text == p.state.LastMessage {
		res.Outcome = OutcomeUnchanged
	} else {
		res.Outcome, res.Err = p.send(ctx, text)
	}

	for _, obs := range observations {
		p.state.Previous[obs.AssetID] = obs.Price
		p.metrics.PriceObserved(obs.Symbol, obs.Price)
	}
	if p.persistence != nil {
		if err := p.persistence.RecordPrices(ctx, observations); err != nil {
			logx.WithContext(ctx).Errorf("poller: record prices err=%v", err)
		}
	}
	p.metrics.CycleCompleted(res.Outcome.String())
	return res
}

func (p *Poller) fetchAll(ctx context.Context) ([]market.Observation, error) {
	observations := make([]market.Observation, 0, len(p.assets))
	for _, a := range p.assets {
		reqCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
		price, err := a.Provider.Price(reqCtx, a.ID)
		cancel()
		if err == nil && (math.IsNaN(price) || math.IsInf(price, 0) || price <= 0) {
			err = market.Unavailable(a.ID, "provider returned %v", price)
		}
		if err != nil {
			p.metrics.FetchFailed(a.Symbol)
			logx.WithContext(ctx).Errorf("poller: fetch asset=%s provider=%s err=%v", a.ID, a.ProviderName, err)
			return nil, market.UnavailableErr(a.ID, err)
		}
		observations = append(observations, market.Observation{
			AssetID:  a.ID,
			Symbol:   a.Symbol,
			Provider: a.ProviderName,
			Price:    price,
			At:       p.now(),
		})
	}
	return observations, nil
}

func (p *Poller) buildLines(ctx context.Context, observations []market.Observation) []message.Line {
	lines := make([]message.Line, 0, len(observations))
	for i, obs := range observations {
		a := p.assets[i]
		sincePrevious := 0.0
		if prev, ok := p.state.Previous[a.ID]; ok {
			sincePrevious = trend.PercentChange(obs.Price, prev)
		}
		line := message.Line{
			Symbol:    a.Symbol,
			Price:     obs.Price,
			Precision: a.Precision,
			Flagship:  a.Flagship,
			Change:    sincePrevious,
			Indicator: trend.Classify(sincePrevious),
		}
		if a.Flagship {
			sinceReference := trend.PercentChange(obs.Price, a.ReferencePrice)
			line.Change = sinceReference
			line.Indicator = trend.Classify(sinceReference)
			logx.WithContext(ctx).Infof("poller: flagship asset=%s price=%v since_reference=%.2f%% since_previous=%.2f%%",
				a.ID, obs.Price, sinceReference, sincePrevious)
		}
		lines = append(lines, line)
	}
	return lines
}

func (p *Poller) send(ctx context.Context, text string) (Outcome, error) {
	err := p.notifier.Send(ctx, text)
	switch {
	case err == nil:
		p.state.LastMessage = text
		logx.WithContext(ctx).Infof("poller: message sent bytes=%d", len(text))
		return OutcomeSent, nil
	case errors.Is(err, notifier.ErrThrottled):
		logx.WithContext(ctx).Infof("poller: send throttled")
		return OutcomeThrottled, err
	default:
		logx.WithContext(ctx).Errorf("poller: send err=%v", err)
		return OutcomeSendFailed, err
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
