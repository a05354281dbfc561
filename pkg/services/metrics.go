package services

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"season-planner-api/pkg/models"
)

// PlannerMetrics holds the planner's Prometheus collectors on a private
// registry. A nil *PlannerMetrics is valid and records nothing.
type PlannerMetrics struct {
	registry *prometheus.Registry

	forecasts        *prometheus.CounterVec
	trainingFailures *prometheus.CounterVec
	varianceStatus   *prometheus.CounterVec
	reforecasts      prometheus.Counter
	agentInvocations *prometheus.CounterVec
	forecastDuration prometheus.Histogram
}

// NewPlannerMetrics registers all collectors on a fresh registry.
func NewPlannerMetrics() *PlannerMetrics {
	reg := prometheus.NewRegistry()
	m := &PlannerMetrics{
		registry: reg,
		forecasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "forecasts_total",
			Help:      "Ensemble forecasts produced, by model used.",
		}, []string{"model_used"}),
		trainingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "model_training_failures_total",
			Help:      "Forecasting model training failures, by model.",
		}, []string{"model"}),
		varianceStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "variance_checks_total",
			Help:      "Weekly variance classifications, by status.",
		}, []string{"status"}),
		reforecasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "reforecasts_total",
			Help:      "Demand re-forecasts triggered in season.",
		}),
		agentInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "agent_invocations_total",
			Help:      "Agent invocations through the handoff manager, by agent and result.",
		}, []string{"agent", "result"}),
		forecastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "planner",
			Name:      "forecast_duration_seconds",
			Help:      "Time spent training and forecasting the ensemble.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
	reg.MustRegister(
		m.forecasts,
		m.trainingFailures,
		m.varianceStatus,
		m.reforecasts,
		m.agentInvocations,
		m.forecastDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PlannerMetrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *PlannerMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *PlannerMetrics) ObserveForecast(used models.ModelUsed, took time.Duration) {
	if m == nil {
		return
	}
	m.forecasts.WithLabelValues(string(used)).Inc()
	m.forecastDuration.Observe(took.Seconds())
}

func (m *PlannerMetrics) ObserveTrainingFailure(model string) {
	if m == nil {
		return
	}
	m.trainingFailures.WithLabelValues(model).Inc()
}

func (m *PlannerMetrics) ObserveVariance(status models.VarianceStatus) {
	if m == nil {
		return
	}
	m.varianceStatus.WithLabelValues(string(status)).Inc()
}

func (m *PlannerMetrics) ObserveReforecast() {
	if m == nil {
		return
	}
	m.reforecasts.Inc()
}

func (m *PlannerMetrics) ObserveAgentInvocation(agent, result string) {
	if m == nil {
		return
	}
	m.agentInvocations.WithLabelValues(agent, result).Inc()
}
