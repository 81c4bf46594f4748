// Package telemetry records per-run Prometheus metrics for the liquidity pipeline.
package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"liquidity-alerts/internal/pool"
)

const namespace = "liquidity_alerts"

// Recorder owns a private registry so runs can be pushed or scraped. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	fetchTotal       *prometheus.CounterVec
	liquidity        *prometheus.GaugeVec
	threshold        *prometheus.GaugeVec
	breach           *prometheus.GaugeVec
	apy              *prometheus.GaugeVec
	alertsTotal      *prometheus.CounterVec
	runsTotal        *prometheus.CounterVec
	lastRunTimestamp prometheus.Gauge
}

// NewRecorder registers the pipeline collectors on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "total",
			Help:      "Upstream fetch outcomes per source.",
		}, []string{"source", "status"}),
		liquidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "available_liquidity_usd",
			Help:      "Available liquidity in USD per source.",
		}, []string{"source"}),
		threshold: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "threshold_usd",
			Help:      "Configured liquidity floor in USD per source.",
		}, []string{"source"}),
		breach: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "breach",
			Help:      "1 when available liquidity is below the floor.",
		}, []string{"source"}),
		apy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "apy_percent",
			Help:      "Supply APY in percent per source.",
		}, []string{"source"}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "total",
			Help:      "Alert deliveries by kind and status.",
		}, []string{"kind", "status"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_timestamp_seconds",
			Help:      "Unix timestamp of the last completed run.",
		}),
	}

	r.registry.MustRegister(
		r.fetchTotal, r.liquidity, r.threshold, r.breach, r.apy,
		r.alertsTotal, r.runsTotal, r.lastRunTimestamp,
	)
	return r
}

// Registry exposes the underlying registry for HTTP scraping.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveFetch counts one fetch outcome ("ok", "not_found", "failed").
func (r *Recorder) ObserveFetch(source, status string) {
	if r == nil {
		return
	}
	r.fetchTotal.WithLabelValues(source, status).Inc()
}

// ObservePool records the evaluated metrics of one source.
func (r *Recorder) ObservePool(source string, m pool.Metrics, floor float64, breached bool) {
	if r == nil {
		return
	}
	r.liquidity.WithLabelValues(source).Set(m.AvailableLiquidity)
	r.threshold.WithLabelValues(source).Set(floor)
	r.apy.WithLabelValues(source).Set(m.APY)
	v := 0.0
	if breached {
		v = 1
	}
	r.breach.WithLabelValues(source).Set(v)
}

// ObserveAlert counts an alert delivery attempt.
func (r *Recorder) ObserveAlert(kind, status string) {
	if r == nil {
		return
	}
	r.alertsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveRun counts a finished run.
func (r *Recorder) ObserveRun(outcome string) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(outcome).Inc()
	r.lastRunTimestamp.Set(float64(time.Now().Unix()))
}

// Push sends the registry to a Prometheus Pushgateway under job.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if r == nil || url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(r.registry).PushContext(ctx)
}
