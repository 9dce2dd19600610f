// Package metrics holds the Prometheus collectors for the CRM pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Lead lifecycle metrics
	LeadsCaptured      *prometheus.CounterVec
	LeadsRouted        *prometheus.CounterVec
	LeadClaims         *prometheus.CounterVec
	AlarmsSent         *prometheus.CounterVec
	SLABreaches        *prometheus.CounterVec
	Reassignments      *prometheus.CounterVec
	EmailsSent         *prometheus.CounterVec
	SweepDuration      *prometheus.HistogramVec
	SweepItemsFailed   *prometheus.CounterVec
	ClaimToContactTime prometheus.Histogram
}

// New creates a Metrics instance registered on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		LeadsCaptured: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_leads_captured_total",
				Help: "Leads captured through public intake",
			},
			[]string{"language"},
		),
		LeadsRouted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_leads_routed_total",
				Help: "Routing outcomes",
			},
			[]string{"outcome"}, // rule_match, round_robin, broadcast, unroutable
		),
		LeadClaims: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_lead_claims_total",
				Help: "Claim attempts by result",
			},
			[]string{"status"}, // claimed, already_claimed, already_yours
		),
		AlarmsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_escalation_alarms_total",
				Help: "Escalation alarms by level and result",
			},
			[]string{"level", "result"},
		),
		SLABreaches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_sla_breaches_total",
				Help: "Claim and contact SLA breaches marked",
			},
			[]string{"kind"}, // claim, contact
		),
		Reassignments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_reassignments_total",
				Help: "Lead reassignments by reason",
			},
			[]string{"reason"},
		),
		EmailsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_emails_total",
				Help: "Outbound emails by provider and status",
			},
			[]string{"provider", "status"},
		),
		SweepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crm_sweep_duration_seconds",
				Help:    "Duration of trigger sweeps",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		),
		SweepItemsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_sweep_items_failed_total",
				Help: "Per-lead failures inside sweeps",
			},
			[]string{"kind"},
		),
		ClaimToContactTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "crm_claim_to_first_action_seconds",
			Help:    "Time between claim and the first recorded contact",
			Buckets: []float64{30, 60, 120, 180, 300, 600, 1800, 3600},
		}),
	}
}

// Middleware records request counts and latency per route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// RecordLeadCaptured increments the intake counter.
func (m *Metrics) RecordLeadCaptured(language string) {
	if m == nil {
		return
	}
	m.LeadsCaptured.WithLabelValues(language).Inc()
}

// RecordRouted records a routing outcome.
func (m *Metrics) RecordRouted(outcome string) {
	if m == nil {
		return
	}
	m.LeadsRouted.WithLabelValues(outcome).Inc()
}

// RecordClaim records a claim attempt result.
func (m *Metrics) RecordClaim(status string) {
	if m == nil {
		return
	}
	m.LeadClaims.WithLabelValues(status).Inc()
}

// RecordAlarm records an escalation alarm attempt.
func (m *Metrics) RecordAlarm(level int, success bool) {
	if m == nil {
		return
	}
	m.AlarmsSent.WithLabelValues(strconv.Itoa(level), result(success)).Inc()
}

// RecordBreach records a marked SLA breach.
func (m *Metrics) RecordBreach(kind string) {
	if m == nil {
		return
	}
	m.SLABreaches.WithLabelValues(kind).Inc()
}

// RecordReassignment records a committed reassignment.
func (m *Metrics) RecordReassignment(reason string) {
	if m == nil {
		return
	}
	m.Reassignments.WithLabelValues(reason).Inc()
}

// RecordEmail records an email provider attempt.
func (m *Metrics) RecordEmail(provider string, success bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !success {
		status = "failed"
	}
	m.EmailsSent.WithLabelValues(provider, status).Inc()
}

// RecordSweep records the duration and failures of a trigger sweep.
func (m *Metrics) RecordSweep(kind string, elapsed time.Duration, failed int) {
	if m == nil {
		return
	}
	m.SweepDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if failed > 0 {
		m.SweepItemsFailed.WithLabelValues(kind).Add(float64(failed))
	}
}

// RecordFirstAction observes the claim to first contact delay.
func (m *Metrics) RecordFirstAction(sinceClaim time.Duration) {
	if m == nil || sinceClaim < 0 {
		return
	}
	m.ClaimToContactTime.Observe(sinceClaim.Seconds())
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
