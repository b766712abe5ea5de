package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "highstakes"

// Rejection reasons used as the "reason" label on stakes_rejected_total.
const (
	ReasonBadRequest     = "bad_request"
	ReasonUnknownSession = "unknown_session"
	ReasonRateLimited    = "rate_limited"
)

// Sources supplies point-in-time sizes sampled on every scrape. Nil funcs are
// skipped.
type Sources struct {
	Offers        func() int
	Sessions      func() int
	StreamClients func() int
}

// Metrics holds the server's collectors and the registry they live on.
type Metrics struct {
	registry *prometheus.Registry

	sessionsCreated prometheus.Counter
	stakesSubmitted prometheus.Counter
	stakesRejected  *prometheus.CounterVec
	alertsFired     *prometheus.CounterVec
}

// New builds a Metrics with its own registry, including the Go runtime
// collector and gauges backed by src.
func New(src Sources) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Session tokens issued.",
		}),
		stakesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stakes_submitted_total",
			Help:      "Stakes accepted into a leaderboard.",
		}),
		stakesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stakes_rejected_total",
			Help:      "Stake submissions rejected before reaching a leaderboard.",
		}, []string{"reason"}),
		alertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fired_total",
			Help:      "Stake alerts fired, by rule and severity.",
		}, []string{"rule", "severity"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		m.sessionsCreated,
		m.stakesSubmitted,
		m.stakesRejected,
		m.alertsFired,
	)
	gauge(reg, "offers", "Offers with a leaderboard.", src.Offers)
	gauge(reg, "sessions", "Sessions currently held.", src.Sessions)
	gauge(reg, "stream_clients", "Connected websocket clients.", src.StreamClients)

	return m
}

func gauge(reg *prometheus.Registry, name, help string, fn func() int) {
	if fn == nil {
		return
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) }))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionCreated counts a newly issued session token.
func (m *Metrics) SessionCreated() { m.sessionsCreated.Inc() }

// StakeSubmitted counts a stake accepted into a leaderboard.
func (m *Metrics) StakeSubmitted() { m.stakesSubmitted.Inc() }

// StakeRejected counts a rejected stake submission.
func (m *Metrics) StakeRejected(reason string) { m.stakesRejected.WithLabelValues(reason).Inc() }

// AlertFired counts a fired stake alert.
func (m *Metrics) AlertFired(rule, severity string) {
	m.alertsFired.WithLabelValues(rule, severity).Inc()
}
