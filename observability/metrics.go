package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus counters and gauges for the bot.
type Metrics struct {
	LookupsTotal   *prometheus.CounterVec // labels: flow={current,details,forecast,save}
	UpstreamErrors *prometheus.CounterVec // labels: service={weather,render,storage,telegram}
	PanelsSkipped  prometheus.Counter
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates and registers all bot metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.LookupsTotal,
		m.UpstreamErrors,
		m.PanelsSkipped,
		m.ActiveSessions,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so
// parallel tests do not trip "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		LookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skycast",
			Name:      "lookups_total",
			Help:      "Completed weather actions by flow.",
		}, []string{"flow"}),
		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skycast",
			Name:      "upstream_errors_total",
			Help:      "Failed calls to external services.",
		}, []string{"service"}),
		PanelsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skycast",
			Name:      "panels_skipped_total",
			Help:      "Forecast panels dropped because no template matched the condition code.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skycast",
			Name:      "active_sessions",
			Help:      "Dialogue sessions currently awaiting follow-up input.",
		}),
	}
}

// Handler returns the HTTP handler serving /metrics and /healthz.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
