package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("automod/engine")

var messageProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "automod_message_duration_sec",
	Help:    "Total duration of pipeline processing for admitted messages",
	Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
})

var messageProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_messages_processed",
	Help: "Number of admitted messages processed, by detection tier and outcome",
}, []string{"tier", "violation"})

var messageSkipCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_messages_skipped",
	Help: "Number of messages discarded by the ingress filter",
}, []string{"reason"})

var messageErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_message_errors",
	Help: "Number of messages which failed processing with an unexpected error",
})

var enforcementActionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_enforcement_actions",
	Help: "Number of enforcement actions which took effect",
}, []string{"action"})

var enforcementFailureCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_enforcement_failures",
	Help: "Number of enforcement steps which failed",
}, []string{"step", "permission"})

var auditPersistFailureCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_audit_persist_failures",
	Help: "Number of audit log records which could not be persisted",
}, []string{"kind"})
