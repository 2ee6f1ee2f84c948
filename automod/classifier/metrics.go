package classifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var classifierRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_classifier_requests",
	Help: "Number of classifier API requests, by status",
}, []string{"status"})

var classifierDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "automod_classifier_request_duration_sec",
	Help:    "Duration of classifier API requests, including retries",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
})
