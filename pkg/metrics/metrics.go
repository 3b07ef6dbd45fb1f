package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TransformsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transform_documents_total",
			Help: "Total number of document transforms by resource type and outcome (count)",
		},
		[]string{"resource_type", "status"},
	)

	TransformDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transform_duration_ms",
			Help:    "Duration of one document transform in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"resource_type", "status"},
	)

	DeletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transform_deletions_total",
			Help: "Total number of deletion transforms by outcome (count)",
		},
		[]string{"status"},
	)

	LockWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "subject_lock_wait_duration_ms",
			Help:    "Time spent waiting for the per-subject lock in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)

	RegistryRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_requests_total",
			Help: "Total number of backing-store registry requests (count)",
		},
		[]string{"operation", "status"},
	)

	RegistryRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "registry_request_duration_ms",
			Help:    "Duration of registry requests in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"operation"},
	)

	ActiveRules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "transform_active_rules",
			Help: "Number of enabled transform rules currently loaded",
		},
	)

	RuleEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transform_rule_evaluations_total",
			Help: "Per-rule evaluation outcomes (count)",
		},
		[]string{"rule_id", "result"},
	)

	BrokerMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_total",
			Help: "Broker messages consumed/produced by topic and status (count)",
		},
		[]string{"direction", "topic", "status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "management_rate_limit_requests_total",
			Help: "Admin API requests by rate-limit decision (count)",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		TransformsTotal,
		TransformDuration,
		DeletionsTotal,
		LockWaitDuration,
		RegistryRequestsTotal,
		RegistryRequestDuration,
		ActiveRules,
		RuleEvaluationsTotal,
		BrokerMessagesTotal,
		CircuitBreakerState,
		RateLimitRequestsTotal,
	)
}

func IncTransform(resourceType, status string) {
	TransformsTotal.WithLabelValues(resourceType, status).Inc()
}

func ObserveTransformDuration(resourceType, status string, duration time.Duration) {
	TransformDuration.WithLabelValues(resourceType, status).Observe(float64(duration.Milliseconds()))
}

func IncDeletion(status string) {
	DeletionsTotal.WithLabelValues(status).Inc()
}

func ObserveLockWait(duration time.Duration) {
	LockWaitDuration.Observe(float64(duration.Milliseconds()))
}

func IncRegistryRequest(operation, status string) {
	RegistryRequestsTotal.WithLabelValues(operation, status).Inc()
}

func ObserveRegistryRequestDuration(operation string, duration time.Duration) {
	RegistryRequestDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func SetActiveRules(count int) {
	ActiveRules.Set(float64(count))
}

func IncRuleEvaluation(ruleID, result string) {
	RuleEvaluationsTotal.WithLabelValues(ruleID, result).Inc()
}

func IncBrokerMessage(direction, topic, status string) {
	BrokerMessagesTotal.WithLabelValues(direction, topic, status).Inc()
}

func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
