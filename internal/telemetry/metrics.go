package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	triggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runbooks_triggers_total",
		Help: "Trigger calls by runbook and initial outcome",
	}, []string{"runbook", "outcome"})

	executionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runbooks_executions_finished_total",
		Help: "Executions that reached a terminal status",
	}, []string{"runbook", "status"})

	runnerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "runbooks_runner_duration_seconds",
		Help:    "Runner call duration",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"runbook"})

	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runbooks_decisions_total",
		Help: "Approval decisions recorded",
	}, []string{"decision"})

	escalationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runbooks_escalations_total",
		Help: "Pending approvals flagged as escalated",
	})

	rateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runbooks_rate_limited_total",
		Help: "Auto-approve triggers degraded to manual approval by the rate limiter",
	}, []string{"runbook"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runbooks_api_http_requests_total",
		Help: "HTTP requests handled by runbook-api",
	}, []string{"method", "code"})
)

// RecordTrigger учитывает Trigger с начальным статусом execution'а.
func RecordTrigger(runbook, outcome string) {
	triggersTotal.WithLabelValues(runbook, outcome).Inc()
}

// RecordFinished учитывает переход execution'а в терминальный статус.
func RecordFinished(runbook, status string) {
	executionsFinished.WithLabelValues(runbook, status).Inc()
}

// ObserveRunner записывает длительность вызова Runner'а.
func ObserveRunner(runbook string, d time.Duration) {
	runnerDuration.WithLabelValues(runbook).Observe(d.Seconds())
}

// RecordDecision учитывает голос approver'а.
func RecordDecision(decision string) {
	decisionsTotal.WithLabelValues(decision).Inc()
}

// RecordEscalation учитывает эскалацию.
func RecordEscalation() {
	escalationsTotal.Inc()
}

// RecordRateLimited учитывает срабатывание rate limit.
func RecordRateLimited(runbook string) {
	rateLimitedTotal.WithLabelValues(runbook).Inc()
}

// RecordHTTPRequest учитывает HTTP запрос к API.
func RecordHTTPRequest(method string, code int) {
	httpRequests.WithLabelValues(method, statusClass(code)).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
