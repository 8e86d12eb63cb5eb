package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_evaluations_total",
			Help: "Total number of ruleset evaluations (count)",
		},
		[]string{"generation", "status"},
	)

	EvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "decision_evaluation_duration_ms",
			Help:    "Ruleset evaluation duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"generation"},
	)

	ActiveRules = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "decision_active_rules",
			Help: "Number of compiled rules in the cached ruleset (count)",
		},
		[]string{"generation"},
	)

	CacheRebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_cache_rebuilds_total",
			Help: "Total number of executor cache rebuilds (count)",
		},
		[]string{"generation", "status"},
	)

	ShadowErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_shadow_errors_total",
			Help: "Total number of swallowed shadow evaluation errors (count)",
		},
		[]string{"stage"},
	)

	RuleErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_rule_errors_total",
			Help: "Total number of isolated per-rule runtime errors (count)",
		},
		[]string{"generation"},
	)

	ListResolutionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_list_resolution_errors_total",
			Help: "Total number of named-list resolution failures (count)",
		},
		[]string{"list"},
	)

	BacktestJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtest_jobs_total",
			Help: "Total number of backtest jobs by terminal status (count)",
		},
		[]string{"status"},
	)

	BacktestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backtest_duration_ms",
			Help:    "Backtest job duration in milliseconds",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 30000, 60000, 300000},
		},
	)

	BacktestQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backtest_queue_depth",
			Help: "Number of backtest jobs waiting for a worker (count)",
		},
	)

	PromotionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promotion_operations_total",
			Help: "Total number of promotion coordinator operations (count)",
		},
		[]string{"operation", "status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failed requests through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of rate-limited management requests (count)",
		},
		[]string{"status"},
	)

	BrokerPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_publish_total",
			Help: "Total number of config events published (count)",
		},
		[]string{"topic", "status"},
	)
)

var registered = map[prometheus.Collector]bool{}

func register(collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if registered[c] {
			continue
		}
		prometheus.MustRegister(c)
		registered[c] = true
	}
}

func RegisterEvaluationMetrics() {
	register(
		EvaluationsTotal,
		EvaluationDuration,
		ActiveRules,
		CacheRebuildsTotal,
		ShadowErrorsTotal,
		RuleErrorsTotal,
		ListResolutionErrorsTotal,
	)
}

func RegisterBacktestMetrics() {
	register(BacktestJobsTotal, BacktestDuration, BacktestQueueDepth)
}

func RegisterPromotionMetrics() {
	register(PromotionsTotal)
}

func RegisterCircuitBreakerMetrics() {
	register(CircuitBreakerState, CircuitBreakerRequests, CircuitBreakerFailures)
}

func RegisterHTTPMetrics() {
	register(RateLimitRequestsTotal, BrokerPublishTotal)
}

func ObserveEvaluationDuration(generation string, d time.Duration) {
	EvaluationDuration.WithLabelValues(generation).Observe(float64(d.Milliseconds()))
}

func ObserveBacktestDuration(d time.Duration) {
	BacktestDuration.Observe(float64(d.Milliseconds()))
}

func SetActiveRules(generation string, count int) {
	ActiveRules.WithLabelValues(generation).Set(float64(count))
}
