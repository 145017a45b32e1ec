package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	TaskProcessed  *prometheus.CounterVec
	APIErrors      *prometheus.CounterVec
	RequestSeconds *prometheus.HistogramVec
	ActiveWorkers  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		TaskProcessed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "reverse_geocoding_tasks_processed_total",
			Help: "Total number of processed reverse geocoding tasks.",
		}, []string{"status"}),
		APIErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "reverse_geocoding_provider_errors_total",
			Help: "Total number of errors received from the geocoding provider, by error kind.",
		}, []string{"kind"}),
		RequestSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reverse_geocoding_provider_request_duration_seconds",
			Help:    "Duration of requests to the geocoding provider API.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		ActiveWorkers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "reverse_geocoding_active_workers",
			Help: "Current number of active workers processing tasks.",
		}),
	}
}
