package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "royalty_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	calculateTotal   *prometheus.CounterVec
	calculateLatency *prometheus.HistogramVec

	validateTotal   *prometheus.CounterVec
	validateLatency *prometheus.HistogramVec

	lockTotal   *prometheus.CounterVec
	lockLatency *prometheus.HistogramVec

	rollbackTotal   *prometheus.CounterVec
	rollbackLatency *prometheus.HistogramVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	runTransitions *prometheus.CounterVec
	statementHooks *prometheus.CounterVec

	consumerLag *prometheus.GaugeVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		calculateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "calculate_total",
				Help: "Total calculation passes by result",
			},
			[]string{"result"},
		)
		calculateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "calculate_latency_seconds",
				Help:    "Calculation pass latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		validateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "validate_total",
				Help: "Total validation reports by result",
			},
			[]string{"result"},
		)
		validateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "validate_latency_seconds",
				Help:    "Validation report latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		lockTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "lock_total",
				Help: "Total lock decisions by result",
			},
			[]string{"result"},
		)
		lockLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "lock_latency_seconds",
				Help:    "Lock decision latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		rollbackTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rollback_total",
				Help: "Total rollbacks by result",
			},
			[]string{"result"},
		)
		rollbackLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "rollback_latency_seconds",
				Help:    "Rollback latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "statement_export_total",
				Help: "Total statement export operations by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "statement_export_latency_seconds",
				Help:    "Statement export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		runTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "run_transitions_total",
				Help: "Total run status transitions by edge",
			},
			[]string{"transition"},
		)
		statementHooks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "statement_hooks_total",
				Help: "Total statement review-cycle hooks by type",
			},
			[]string{"hook"},
		)

		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		prometheus.MustRegister(
			calculateTotal,
			calculateLatency,
			validateTotal,
			validateLatency,
			lockTotal,
			lockLatency,
			rollbackTotal,
			rollbackLatency,
			exportTotal,
			exportLatency,
			runTransitions,
			statementHooks,
			consumerLag,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveCalculate records calculation pass latency and result.
func ObserveCalculate(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if calculateTotal != nil {
		calculateTotal.WithLabelValues(result).Inc()
	}
	if calculateLatency != nil {
		calculateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveValidate records validation report latency and result.
func ObserveValidate(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if validateTotal != nil {
		validateTotal.WithLabelValues(result).Inc()
	}
	if validateLatency != nil {
		validateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveLock records lock decision latency and result.
func ObserveLock(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if lockTotal != nil {
		lockTotal.WithLabelValues(result).Inc()
	}
	if lockLatency != nil {
		lockLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveRollback records rollback latency and result.
func ObserveRollback(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if rollbackTotal != nil {
		rollbackTotal.WithLabelValues(result).Inc()
	}
	if rollbackLatency != nil {
		rollbackLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveExport records statement export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncRunTransition increments the run transition counter for an edge.
func IncRunTransition(transition string) {
	if transition == "" {
		transition = "unknown"
	}
	if runTransitions != nil {
		runTransitions.WithLabelValues(transition).Inc()
	}
}

// IncStatementHook increments the statement hook counter.
func IncStatementHook(hook string) {
	if hook == "" {
		hook = "unknown"
	}
	if statementHooks != nil {
		statementHooks.WithLabelValues(hook).Inc()
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
