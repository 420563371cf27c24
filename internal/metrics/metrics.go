// Package metrics exposes Prometheus collectors for the trigger engine and
// its tool endpoint.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

type Metrics struct {
	AnalysesTotal         prometheus.Counter
	MealsAnalyzed         prometheus.Gauge
	PatternsSurfaced      *prometheus.GaugeVec
	AnalysisDuration      prometheus.Histogram
	ExperimentTransitions *prometheus.CounterVec
	ToolCallsTotal        *prometheus.CounterVec
}

// NewMetrics registers the collectors once with the default registry and
// returns the shared instance.
//
// Metrics:
//   - meal_triggers_analyses_total
//   - meal_triggers_meals_analyzed
//   - meal_triggers_patterns_surfaced{polarity}
//   - meal_triggers_analysis_duration_seconds
//   - meal_triggers_experiment_transitions_total{transition}
//   - meal_triggers_tool_calls_total{tool,status}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			AnalysesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "meal_triggers_analyses_total",
				Help: "Total number of trigger analyses run",
			}),
			MealsAnalyzed: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "meal_triggers_meals_analyzed",
				Help: "Number of meals in the most recent analysis",
			}),
			PatternsSurfaced: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "meal_triggers_patterns_surfaced",
					Help: "Number of patterns returned by the most recent analysis",
				},
				[]string{"polarity"}, // "negative" or "positive"
			),
			AnalysisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "meal_triggers_analysis_duration_seconds",
				Help:    "Duration of trigger analyses in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			}),
			ExperimentTransitions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "meal_triggers_experiment_transitions_total",
					Help: "Experiment state transitions",
				},
				[]string{"transition"}, // "start", "replace", "stop"
			),
			ToolCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "meal_triggers_tool_calls_total",
					Help: "Tool calls handled, by tool and outcome",
				},
				[]string{"tool", "status"},
			),
		}
	})
	return globalMetrics
}
