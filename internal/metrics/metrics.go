// Package metrics defines the Prometheus instrumentation for the
// deferred-work core: scheduler ticks, publish outcomes, task
// executions, and rate-limit denials.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics for the service. All methods are
// nil-safe so components can run uninstrumented in tests.
type Metrics struct {
	SchedulerTicks  prometheus.Counter
	ClaimOutcomes   *prometheus.CounterVec
	PublishOutcomes *prometheus.CounterVec
	TaskExecutions  *prometheus.CounterVec
	TasksInFlight   prometheus.Gauge
	RateLimitDenied prometheus.Counter
}

// New creates and registers the service metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SchedulerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postflow_scheduler_ticks_total",
			Help: "Total number of publish scheduler ticks",
		}),
		ClaimOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postflow_claims_total",
			Help: "Claim attempts by entity and outcome (won/lost)",
		}, []string{"entity", "outcome"}),
		PublishOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postflow_publishes_total",
			Help: "Publish attempts by outcome (published/failed)",
		}, []string{"outcome"}),
		TaskExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postflow_task_executions_total",
			Help: "Task executions by type and outcome (completed/failed)",
		}, []string{"task_type", "outcome"}),
		TasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "postflow_tasks_in_flight",
			Help: "Number of tasks currently executing",
		}),
		RateLimitDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postflow_rate_limit_denied_total",
			Help: "Engagement actions denied by the daily budget",
		}),
	}

	reg.MustRegister(
		m.SchedulerTicks,
		m.ClaimOutcomes,
		m.PublishOutcomes,
		m.TaskExecutions,
		m.TasksInFlight,
		m.RateLimitDenied,
	)

	return m
}

// IncSchedulerTick records one scheduler tick.
func (m *Metrics) IncSchedulerTick() {
	if m == nil || m.SchedulerTicks == nil {
		return
	}
	m.SchedulerTicks.Inc()
}

// IncClaim records a claim attempt outcome for an entity kind.
func (m *Metrics) IncClaim(entity, outcome string) {
	if m == nil || m.ClaimOutcomes == nil {
		return
	}
	m.ClaimOutcomes.WithLabelValues(entity, outcome).Inc()
}

// IncPublish records a publish outcome.
func (m *Metrics) IncPublish(outcome string) {
	if m == nil || m.PublishOutcomes == nil {
		return
	}
	m.PublishOutcomes.WithLabelValues(outcome).Inc()
}

// IncTaskExecution records a task execution outcome.
func (m *Metrics) IncTaskExecution(taskType, outcome string) {
	if m == nil || m.TaskExecutions == nil {
		return
	}
	m.TaskExecutions.WithLabelValues(taskType, outcome).Inc()
}

// TaskStarted marks one task as in flight.
func (m *Metrics) TaskStarted() {
	if m == nil || m.TasksInFlight == nil {
		return
	}
	m.TasksInFlight.Inc()
}

// TaskFinished marks one task as no longer in flight.
func (m *Metrics) TaskFinished() {
	if m == nil || m.TasksInFlight == nil {
		return
	}
	m.TasksInFlight.Dec()
}

// IncRateLimitDenied records a denied engagement action.
func (m *Metrics) IncRateLimitDenied() {
	if m == nil || m.RateLimitDenied == nil {
		return
	}
	m.RateLimitDenied.Inc()
}
