// Package metrics holds the Prometheus collectors of the approval workflow
// and the location service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics tracks approval outcomes, certificate issuance and operation
// latency.
type Metrics struct {
	ApprovalRequests    *prometheus.CounterVec
	ApprovalOutcomes    *prometheus.CounterVec
	CertificatesIssued  prometheus.Counter
	LocationMutations   *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	CertifiedWorkingCap *prometheus.GaugeVec
	PostCommitFailures  *prometheus.CounterVec
}

// New registers every collector with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ApprovalRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "locationcore_approval_requests_total",
			Help: "Approval requests created, by kind",
		}, []string{"kind"}),
		ApprovalOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "locationcore_approval_outcomes_total",
			Help: "Approval requests resolved, by kind and status",
		}, []string{"kind", "status"}),
		CertificatesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "locationcore_certificates_issued_total",
			Help: "Cell certificates generated",
		}),
		LocationMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "locationcore_location_mutations_total",
			Help: "Direct location mutations, by operation",
		}, []string{"operation"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "locationcore_operation_duration_seconds",
			Help:    "Duration of workflow and location operations",
			Buckets: durationBuckets,
		}, []string{"operation", "outcome"}),
		CertifiedWorkingCap: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "locationcore_certified_working_capacity",
			Help: "Working capacity on the current certificate, by prison",
		}, []string{"prison"}),
		PostCommitFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "locationcore_post_commit_failures_total",
			Help: "Event, audit or archive deliveries that failed after commit",
		}, []string{"target"}),
	}
}

// IncRequest records a new approval request.
func (m *Metrics) IncRequest(kind string) {
	if m == nil {
		return
	}
	m.ApprovalRequests.WithLabelValues(kind).Inc()
}

// IncOutcome records a resolved approval request.
func (m *Metrics) IncOutcome(kind, status string) {
	if m == nil {
		return
	}
	m.ApprovalOutcomes.WithLabelValues(kind, status).Inc()
}

// CertificateIssued records a new certificate and its working capacity.
func (m *Metrics) CertificateIssued(prisonID string, workingCapacity int) {
	if m == nil {
		return
	}
	m.CertificatesIssued.Inc()
	m.CertifiedWorkingCap.WithLabelValues(prisonID).Set(float64(workingCapacity))
}

func (m *Metrics) IncMutation(operation string) {
	if m == nil {
		return
	}
	m.LocationMutations.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncPostCommitFailure(target string) {
	if m == nil {
		return
	}
	m.PostCommitFailures.WithLabelValues(target).Inc()
}

// Observe records the duration of an operation started at start.
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.OperationDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}
