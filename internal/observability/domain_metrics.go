package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	translateRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tollgate_translate_requests_total",
			Help: "Total number of NLP gateway translation requests.",
		},
		[]string{"outcome"},
	)
	translateDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tollgate_translate_duration_seconds",
			Help:    "NLP gateway round-trip latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tollgate_tool_calls_total",
			Help: "Total number of MCP tool invocations.",
		},
		[]string{"tool", "outcome"},
	)
	warehouseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tollgate_warehouse_queries_total",
			Help: "Total number of warehouse statement executions.",
		},
		[]string{"engine", "outcome"},
	)
	warehouseQueryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tollgate_warehouse_query_duration_seconds",
			Help:    "Warehouse statement execution latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"engine"},
	)
)

func init() {
	prometheus.MustRegister(
		translateRequestsTotal,
		translateDurationSeconds,
		toolCallsTotal,
		warehouseQueriesTotal,
		warehouseQueryDurationSeconds,
	)
}

func ObserveTranslate(elapsed time.Duration, err error) {
	translateRequestsTotal.WithLabelValues(outcomeLabel(err)).Inc()
	translateDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveToolCall(tool string, err error) {
	toolCallsTotal.WithLabelValues(tool, outcomeLabel(err)).Inc()
}

func ObserveWarehouseQuery(engine string, elapsed time.Duration, err error) {
	warehouseQueriesTotal.WithLabelValues(engine, outcomeLabel(err)).Inc()
	warehouseQueryDurationSeconds.WithLabelValues(engine).Observe(elapsed.Seconds())
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
