package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the scheduler exports.
type Metrics struct {
	BookingsReceived   *prometheus.CounterVec
	BookingsCancelled  prometheus.Counter
	StoreErrors        *prometheus.CounterVec
	HubSubscribers     prometheus.Gauge
	HubEventsPublished *prometheus.CounterVec
	HubEventsDropped   prometheus.Counter
	EmailDeliveries    *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BookingsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goodvibes_bookings_received_total",
			Help: "Bookings received by payload kind and outcome",
		}, []string{"kind", "outcome"}),

		BookingsCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "goodvibes_bookings_cancelled_total",
			Help: "Bookings moved to cancelled",
		}),

		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goodvibes_store_errors_total",
			Help: "Booking store failures by operation",
		}, []string{"op"}),

		HubSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "goodvibes_hub_subscribers",
			Help: "Currently connected realtime subscribers",
		}),

		HubEventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goodvibes_hub_events_published_total",
			Help: "Events fanned out to subscribers by type",
		}, []string{"type"}),

		HubEventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "goodvibes_hub_events_dropped_total",
			Help: "Events dropped because a subscriber buffer was full",
		}),

		EmailDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goodvibes_email_deliveries_total",
			Help: "Confirmation email attempts by result",
		}, []string{"result"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "goodvibes_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		gatherer: reg,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
