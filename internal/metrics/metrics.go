package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeromicro/go-zero/core/logx"
)

const namespace = "pxwatch"

// Loop collects polling loop metrics on a private registry.
type Loop struct {
	Registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	fetchFailures *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	lastCycle     prometheus.Gauge
}

// NewLoop registers the loop collectors plus process and Go runtime metrics.
func NewLoop() *Loop {
	l := &Loop{
		Registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "poller",
				Name:      "cycles_total",
				Help:      "Completed polling cycles by outcome.",
			},
			[]string{"outcome"},
		),
		fetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "market",
				Name:      "fetch_failures_total",
				Help:      "Price fetches that returned no usable price.",
			},
			[]string{"symbol"},
		),
		lastPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "market",
				Name:      "price_usd",
				Help:      "Last observed USD price per asset.",
			},
			[]string{"symbol"},
		),
		lastCycle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "poller",
				Name:      "last_cycle_timestamp_seconds",
				Help:      "Unix time of the last completed cycle.",
			},
		),
	}
	l.Registry.MustRegister(
		l.cycles,
		l.fetchFailures,
		l.lastPrice,
		l.lastCycle,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return l
}

func (l *Loop) CycleCompleted(outcome string) {
	l.cycles.WithLabelValues(outcome).Inc()
	l.lastCycle.SetToCurrentTime()
}

func (l *Loop) FetchFailed(symbol string) {
	l.fetchFailures.WithLabelValues(symbol).Inc()
}

func (l *Loop) PriceObserved(symbol string, price float64) {
	l.lastPrice.WithLabelValues(symbol).Set(price)
}

// Handler exposes the registry in the Prometheus text format.
func (l *Loop) Handler() http.Handler {
	return promhttp.HandlerFor(l.Registry, promhttp.HandlerOpts{})
}

// Serve exposes Handler on addr at path until ctx is cancelled.
func (l *Loop) Serve(ctx context.Context, addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, l.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logx.Infof("metrics: listening addr=%s path=%s", addr, path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
