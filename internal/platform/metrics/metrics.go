package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	CertificatesCreated prometheus.Counter
	DuplicatesRejected  prometheus.Counter
	Reissues            prometheus.Counter
	Generations         prometheus.Counter
	GenerationFailures  prometheus.Counter
	Verifications       prometheus.Counter
	GenerationSeconds   prometheus.Histogram
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		CertificatesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "brgycert_certificates_created_total",
			Help: "Certificates successfully created.",
		}),
		DuplicatesRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "brgycert_duplicates_rejected_total",
			Help: "Creation attempts rejected by the duplicate-active check.",
		}),
		Reissues: promauto.NewCounter(prometheus.CounterOpts{
			Name: "brgycert_reissues_total",
			Help: "Certificates reissued.",
		}),
		Generations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "brgycert_generations_total",
			Help: "Documents generated.",
		}),
		GenerationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "brgycert_generation_failures_total",
			Help: "Document generation attempts that failed.",
		}),
		Verifications: promauto.NewCounter(prometheus.CounterOpts{
			Name: "brgycert_verifications_total",
			Help: "Public verification lookups served.",
		}),
		GenerationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "brgycert_generation_duration_seconds",
			Help:    "Latency of the rendering pipeline.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}
