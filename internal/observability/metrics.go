package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	CacheOps          *prometheus.CounterVec
	SessionEvents     *prometheus.CounterVec
	GuardRejections   *prometheus.CounterVec
	KnowledgeSearches prometheus.Counter
	TurnLatency       prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		CacheOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_ops_total",
			Help:      "Cache operations by kind (history, knowledge) and outcome (hit, miss, bypass, error).",
		}, []string{"kind", "outcome"}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		GuardRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_rejections_total",
			Help:      "Messages rejected by the guard layer, by code.",
		}, []string{"code"}),
		KnowledgeSearches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "knowledge_searches_total",
			Help:      "Vector similarity searches executed against the knowledge store.",
		}),
		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_turn_latency_ms",
			Help:      "End-to-end latency of a chat turn in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000},
		}),
	}
}

func (m *Metrics) ObserveTurnLatency(d time.Duration) {
	m.TurnLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
