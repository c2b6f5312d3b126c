// Package metrics exposes process-wide Prometheus counters and histograms
// for ingestion, delivery, and flush outcomes.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every counter/histogram the service records.
type Metrics struct {
	EventsConsumed   *prometheus.CounterVec
	EventsDelivered  *prometheus.CounterVec
	EventsFailed     *prometheus.CounterVec
	EventsStored     prometheus.Counter
	FlushesRun       *prometheus.CounterVec
	FlushDuration    prometheus.Histogram
	EventsCleared    prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// New returns the process-wide Metrics collector. The collectors are
// registered against the default Prometheus registry on the first call;
// later calls return the same Metrics.
func New() *Metrics {
	defaultOnce.Do(func() { defaultMetrics = newMetrics() })
	return defaultMetrics
}

func newMetrics() *Metrics {
	return &Metrics{
		EventsConsumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_events_consumed_total",
			Help: "Inbound events consumed from the pub/sub transport.",
		}, []string{"event_type"}),
		EventsDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_events_delivered_total",
			Help: "Events successfully delivered to a provider.",
		}, []string{"delivery_method"}),
		EventsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_events_failed_total",
			Help: "Delivery attempts that ended in a transient or permanent failure.",
		}, []string{"delivery_method", "kind"}),
		EventsStored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notification_events_stored_total",
			Help: "Events persisted to the undelivered-event store.",
		}),
		FlushesRun: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_flushes_total",
			Help: "Flush invocations, labeled by whether they were dry runs.",
		}, []string{"dry_run"}),
		FlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "notification_flush_duration_seconds",
			Help: "Wall-clock duration of a single flush call.",
		}),
		EventsCleared: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notification_events_cleared_total",
			Help: "Events removed from the store after a successful clear.",
		}),
	}
}

// Handler exposes the registered metrics for Prometheus scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
