package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the watcher's collectors. A nil *Metrics records nothing.
type Metrics struct {
	ticks          *prometheus.CounterVec
	heartbeatsSent prometheus.Counter
	sinkErrors     prometheus.Counter
	queuePending   prometheus.Gauge
	gatherer       prometheus.Gatherer
}

// New registers the collectors on reg. gatherer is what Handler serves; pass
// the same registry for both in tests.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "winwatch_ticks_total",
			Help: "Poll ticks by outcome.",
		}, []string{"outcome"}),
		heartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "winwatch_heartbeats_sent_total",
			Help: "Heartbeats delivered to the collector.",
		}),
		sinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "winwatch_sink_errors_total",
			Help: "Failed heartbeat deliveries.",
		}),
		queuePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "winwatch_queue_pending",
			Help: "Heartbeats waiting in the retry queue.",
		}),
		gatherer: gatherer,
	}
	reg.MustRegister(m.ticks, m.heartbeatsSent, m.sinkErrors, m.queuePending)
	return m
}

func (m *Metrics) Tick(outcome string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HeartbeatSent() {
	if m == nil {
		return
	}
	m.heartbeatsSent.Inc()
}

func (m *Metrics) SinkError() {
	if m == nil {
		return
	}
	m.sinkErrors.Inc()
}

func (m *Metrics) QueuePending(n int) {
	if m == nil {
		return
	}
	m.queuePending.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
