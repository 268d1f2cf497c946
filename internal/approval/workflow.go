// Package approval implements the certification workflow: requests that
// lock a location subtree, and their approval, rejection or withdrawal.
// Every state change runs in one store transaction together with its
// ledger rows and, on approval, the new cell certificate.
package approval

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"locationcore/internal/certificate"
	"locationcore/internal/events"
	"locationcore/internal/lock"
	"locationcore/internal/metrics"
	"locationcore/pkg/domain"
)

// PrisonConfig reports whether a prison's location changes need approval.
type PrisonConfig interface {
	IsCertificationApprovalRequired(ctx context.Context, prisonID string) (bool, error)
}

// OperationalCapacity supplies the signed operation capacity of a prison
// that has never had one approved.
type OperationalCapacity interface {
	GetSignedOperationCapacity(ctx context.Context, prisonID string) (int, error)
}

// Workflow orchestrates approval requests.
type Workflow struct {
	store    domain.PersistentStore
	prisons  PrisonConfig
	capacity OperationalCapacity
	policy   domain.DeactivationPolicy
	logger   *slog.Logger
	metrics  *metrics.Metrics
	events   events.Publisher
	audit    events.AuditSink
	locker   lock.Locker
	archive  *certificate.Archive
	tracer   trace.Tracer
}

// Option configures a Workflow.
type Option func(*Workflow)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workflow) { w.metrics = m }
}

// WithEvents sets the publisher notified once per committed outcome.
func WithEvents(p events.Publisher) Option {
	return func(w *Workflow) {
		if p != nil {
			w.events = p
		}
	}
}

// WithAudit sets the sink receiving one record per mutated entity.
func WithAudit(s events.AuditSink) Option {
	return func(w *Workflow) {
		if s != nil {
			w.audit = s
		}
	}
}

// WithLocker serializes RequestApproval per prison across processes.
func WithLocker(l lock.Locker) Option {
	return func(w *Workflow) { w.locker = l }
}

// WithArchive stores every issued certificate in blob storage.
func WithArchive(a *certificate.Archive) Option {
	return func(w *Workflow) { w.archive = a }
}

// WithDeactivationPolicy decides whether deactivation zeroes stored working
// capacity.
func WithDeactivationPolicy(p domain.DeactivationPolicy) Option {
	return func(w *Workflow) { w.policy = domain.ParseDeactivationPolicy(string(p)) }
}

func WithTracer(t trace.Tracer) Option {
	return func(w *Workflow) {
		if t != nil {
			w.tracer = t
		}
	}
}

// New builds a workflow. Without options events and audit records are
// dropped and nothing is archived.
func New(store domain.PersistentStore, prisons PrisonConfig, capacity OperationalCapacity, opts ...Option) *Workflow {
	w := &Workflow{
		store:    store,
		prisons:  prisons,
		capacity: capacity,
		policy:   domain.DeactivationPreserveWorkingCapacity,
		logger:   slog.Default(),
		events:   events.Discard{},
		audit:    events.Discard{},
		tracer:   otel.Tracer("locationcore.approval"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RequestInput describes a location-linked approval request. Kind may be
// left empty when Payload is set; DRAFT and REACTIVATION need no payload.
type RequestInput struct {
	LocationID string
	Kind       domain.ApprovalRequestKind
	Payload    domain.ApprovalPayload
	Comments   string
}

// Outcome is the result of a resolved request.
type Outcome struct {
	Request              domain.ApprovalRequest  `json:"request"`
	Certificate          *domain.CellCertificate `json:"certificate,omitempty"`
	NewLocationActivated bool                    `json:"new_location_activated"`
	TransactionID        string                  `json:"transaction_id"`
}
