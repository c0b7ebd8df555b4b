package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	questionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askql_questions_total",
			Help: "Total number of natural language questions processed.",
		},
	)
	generationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askql_generation_failures_total",
			Help: "Total number of SQL generation failures (model transport or malformed output).",
		},
	)
	validationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_validation_failures_total",
			Help: "Total number of rejected statements by validation category.",
		},
		[]string{"category"},
	)
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_executions_total",
			Help: "Total number of SQL executions by outcome.",
		},
		[]string{"outcome"},
	)
	executionDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askql_execution_duration_ms",
			Help:    "SQL execution wall-clock duration in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)
	historyArchivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askql_history_archived_total",
			Help: "Total number of history entries archived to the object store.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		questionsTotal,
		generationFailuresTotal,
		validationFailuresTotal,
		executionsTotal,
		executionDurationMs,
		historyArchivedTotal,
	)
}

func ObserveQuestion() {
	questionsTotal.Inc()
}

func ObserveGenerationFailure() {
	generationFailuresTotal.Inc()
}

func ObserveValidationFailure(category string) {
	validationFailuresTotal.WithLabelValues(category).Inc()
}

func ObserveExecution(succeeded bool, elapsed time.Duration) {
	outcome := "ok"
	if !succeeded {
		outcome = "error"
	}
	executionsTotal.WithLabelValues(outcome).Inc()
	executionDurationMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveHistoryArchived(count int) {
	if count > 0 {
		historyArchivedTotal.Add(float64(count))
	}
}
