package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	predictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dermscan_predictions_total",
		Help: "Number of prediction requests by outcome.",
	}, []string{"status"})

	predictionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dermscan_prediction_duration_seconds",
		Help:    "Latency of model inference.",
		Buckets: prometheus.DefBuckets,
	})
)

// ObservePrediction records the outcome of one prediction request. Zero
// durations (cache hits, rejected input) are counted but not timed.
func ObservePrediction(status string, d time.Duration) {
	predictionsTotal.WithLabelValues(status).Inc()
	if d > 0 {
		predictionDuration.Observe(d.Seconds())
	}
}

// Handler serves the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
