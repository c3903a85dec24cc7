package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	AdminRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_admin_requests_total",
		Help: "Admin API requests per route and status class",
	}, []string{"method", "route", "class"})

	AdminRequestSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_admin_request_duration_seconds",
		Help:    "Admin API request latency",
		Buckets: []float64{0.005, 0.025, 0.1, 0.5, 2},
	}, []string{"method", "route"})
)

func init() {
	prometheus.MustRegister(AdminRequestsTotal, AdminRequestSeconds)
}

// StatusClass folds a status code into 2xx/3xx/4xx/5xx.
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
