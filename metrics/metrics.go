// Package metrics exposes Prometheus counters for the execution core:
//
//   - exec_submissions_total{mode,status} – submissions by mode (paper|live)
//     and terminal status (filled|rejected|scheduled|broker_error)
//   - exec_risk_rejections_total{reason}  – risk-gate rejections by reason code
//   - exec_broker_retries_total           – transient broker failures retried
//   - exec_scheduled_jobs_total{outcome}  – close jobs by outcome (scheduled|fired|cancelled)
//
// Metrics register on the default registry in init() and are served by
// whatever /metrics handler the embedding process runs.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exec_submissions_total",
			Help: "Order submissions by mode and terminal status",
		},
		[]string{"mode", "status"},
	)

	riskRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exec_risk_rejections_total",
			Help: "Risk-gate rejections by reason code",
		},
		[]string{"reason"},
	)

	brokerRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exec_broker_retries_total",
			Help: "Transient broker failures that were retried",
		},
	)

	scheduledJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exec_scheduled_jobs_total",
			Help: "Close-scheduled jobs by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(submissions, riskRejections, brokerRetries, scheduledJobs)
}

// Submission records one terminal submission outcome.
func Submission(mode, status string) {
	submissions.WithLabelValues(mode, status).Inc()
}

// RiskRejection records one admission rejection.
func RiskRejection(reason string) {
	riskRejections.WithLabelValues(reason).Inc()
}

// BrokerRetries records n retried transient failures.
func BrokerRetries(n int) {
	if n > 0 {
		brokerRetries.Add(float64(n))
	}
}

// ScheduledJob records a close-job lifecycle outcome.
func ScheduledJob(outcome string) {
	scheduledJobs.WithLabelValues(outcome).Inc()
}
