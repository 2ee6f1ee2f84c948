package detect

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var verdictCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_detect_verdicts",
	Help: "Number of verdicts produced, by detection tier and outcome",
}, []string{"tier", "violation"})

var classifierDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "automod_detect_classifier_duration_sec",
	Help: "Duration of classification backend calls, including failures",
})

var classifierFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_detect_classifier_failures",
	Help: "Number of classification calls which failed open, by kind",
}, []string{"kind"})
