package node

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "duel"

// Metrics collects node metrics on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	calls         *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	events        *prometheus.CounterVec
	disclosures   prometheus.Counter
	deliveries    *prometheus.CounterVec
	faucetCredits *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "calls_total",
			Help:      "contract calls executed, by entrypoint and outcome",
		}, []string{"entrypoint", "outcome"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "call_duration_seconds",
			Help:      "time to execute and commit a contract call",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"entrypoint"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contract",
			Name:      "events_total",
			Help:      "committed contract events, by type",
		}, []string{"type"}),
		disclosures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "requests_queued_total",
			Help:      "disclosure requests written to the outbox",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "deliveries_total",
			Help:      "disclosure callbacks delivered, by outcome",
		}, []string{"outcome"}),
		faucetCredits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "faucet",
			Name:      "credits_total",
			Help:      "faucet credits, by asset",
		}, []string{"asset"}),
	}
	m.registry.MustRegister(
		m.calls, m.callDuration, m.events, m.disclosures, m.deliveries, m.faucetCredits,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) CallExecuted(entrypoint string, failed bool, took time.Duration) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.calls.WithLabelValues(entrypoint, outcome).Inc()
	m.callDuration.WithLabelValues(entrypoint).Observe(took.Seconds())
}

func (m *Metrics) EventCommitted(eventType string) { m.events.WithLabelValues(eventType).Inc() }

func (m *Metrics) DisclosuresQueued(n int) { m.disclosures.Add(float64(n)) }

func (m *Metrics) DisclosureDelivered(err error) {
	if err != nil {
		m.deliveries.WithLabelValues("rejected").Inc()
		return
	}
	m.deliveries.WithLabelValues("ok").Inc()
}

func (m *Metrics) FaucetCredited(asset string) { m.faucetCredits.WithLabelValues(asset).Inc() }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
