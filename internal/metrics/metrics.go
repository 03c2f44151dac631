package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "filebotter"

// Metrics holds the service collectors. One instance is shared by the
// session layer, the renderer and the alert notifier.
type Metrics struct {
	ActiveSessions  prometheus.Gauge
	EventsTotal     *prometheus.CounterVec
	SessionErrors   *prometheus.CounterVec
	ForwardsTotal   prometheus.Counter
	ForwardFailures prometheus.Counter
	RestartsTotal   prometheus.Counter
	AlertsTotal     *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg gets a private
// registry, which keeps tests independent of the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live bot sessions in the registry.",
		}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Handled inbound events by type.",
		}, []string{"type"}),
		SessionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Errors recorded in session error logs by category.",
		}, []string{"category"}),
		ForwardsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forwards_total",
			Help:      "Files forwarded to users.",
		}),
		ForwardFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_failures_total",
			Help:      "File forwards that failed.",
		}),
		RestartsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Sessions restarted by the supervisor.",
		}),
		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Operational alerts emitted by category.",
		}, []string{"category"}),
	}
}
