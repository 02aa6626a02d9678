// Package metrics registers the Prometheus instruments for the RMA tools.
// Recording is fire-and-forget; nothing here can fail a request.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the service counters and histograms.
type Metrics struct {
	registry *prometheus.Registry

	rmaEmailsGenerated *prometheus.CounterVec
	emailsSent         *prometheus.CounterVec
	smsSent            *prometheus.CounterVec
	submissionsLogged  *prometheus.CounterVec
	workflowOutcomes   *prometheus.CounterVec
	workflowDuration   prometheus.Histogram
	deliveryAttempts   prometheus.Histogram
}

// New creates the metric set on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rmaEmailsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rma_emails_generated_total",
			Help: "Total RMA emails generated",
		}, []string{"vendor", "intent", "reason"}),
		emailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails sent",
		}, []string{"status"}),
		smsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_sent_total",
			Help: "Total SMS messages sent",
		}, []string{"status"}),
		submissionsLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submissions_logged_total",
			Help: "Total RMA submissions logged",
		}, []string{"vendor", "intent"}),
		workflowOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_outcomes_total",
			Help: "Return workflow outcomes by status",
		}, []string{"status"}),
		workflowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "workflow_duration_seconds",
			Help:    "Return workflow execution time in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		deliveryAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "email_delivery_attempts",
			Help:    "Attempts used per email delivery",
			Buckets: []float64{1, 2, 3},
		}),
	}
	m.registry.MustRegister(
		m.rmaEmailsGenerated,
		m.emailsSent,
		m.smsSent,
		m.submissionsLogged,
		m.workflowOutcomes,
		m.workflowDuration,
		m.deliveryAttempts,
	)
	return m
}

// Registry exposes the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) RMAEmailGenerated(vendor, intent, reason string) {
	m.rmaEmailsGenerated.WithLabelValues(vendor, intent, reason).Inc()
}

func (m *Metrics) EmailSent(ok bool, attempts int) {
	m.emailsSent.WithLabelValues(status(ok)).Inc()
	if attempts > 0 {
		m.deliveryAttempts.Observe(float64(attempts))
	}
}

func (m *Metrics) SMSSent(ok bool) {
	m.smsSent.WithLabelValues(status(ok)).Inc()
}

func (m *Metrics) SubmissionLogged(vendor, intent string) {
	m.submissionsLogged.WithLabelValues(vendor, intent).Inc()
}

func (m *Metrics) WorkflowOutcome(outcome string, seconds float64) {
	m.workflowOutcomes.WithLabelValues(outcome).Inc()
	m.workflowDuration.Observe(seconds)
}
