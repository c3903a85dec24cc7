package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_outcomes_total",
		Help: "Deliveries settled per queue and outcome",
	}, []string{"queue", "outcome"})

	RetryDelaySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "worker_retry_delay_seconds",
		Help:    "Backoff applied before forwarding a retry to the main exchange",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
	})

	DeadLettersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_dead_letters_total",
		Help: "Messages observed on the dead-letter queue by source",
	}, []string{"source"})

	PublishErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_publish_errors_total",
		Help: "Failed republishes per target exchange",
	}, []string{"exchange"})

	InFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "worker_in_flight",
		Help: "Deliveries currently being handled per queue",
	}, []string{"queue"})
)

func init() {
	prometheus.MustRegister(OutcomesTotal, RetryDelaySeconds, DeadLettersTotal, PublishErrorsTotal, InFlight)
}
