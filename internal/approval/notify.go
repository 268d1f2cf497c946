package approval

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"locationcore/internal/events"
	"locationcore/pkg/domain"
)

func (w *Workflow) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return w.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (w *Workflow) finish(span trace.Span, op string, started time.Time, err error) {
	w.metrics.Observe(op, started, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.code", string(domain.CodeOf(err))))
	}
	span.End()
}

// deliver publishes the outcome events and the audit records of a committed
// transaction. Failures are logged and counted; the commit stands.
func (w *Workflow) deliver(ctx context.Context, op string, actor domain.Actor, res domain.Result, txID string, evts ...events.Event) {
	if err := w.events.Publish(ctx, evts...); err != nil {
		w.metrics.IncPostCommitFailure("events")
		w.logger.ErrorContext(ctx, "publish event failed", "operation", op, "event_type", evts[0].Type, "events", len(evts), "error", err)
	}
	records := events.AuditFromChanges(res.Changes, op, txID, actor)
	if len(records) == 0 {
		return
	}
	if err := w.audit.Record(ctx, records...); err != nil {
		w.metrics.IncPostCommitFailure("audit")
		w.logger.ErrorContext(ctx, "record audit failed", "operation", op, "records", len(records), "error", err)
	}
}

func (w *Workflow) archiveCertificate(ctx context.Context, cert domain.CellCertificate) {
	if w.archive == nil {
		return
	}
	if _, err := w.archive.Put(ctx, cert); err != nil {
		w.metrics.IncPostCommitFailure("archive")
		w.logger.ErrorContext(ctx, "archive certificate failed", "certificate_id", cert.ID, "prison_id", cert.PrisonID, "error", err)
	}
}

func (w *Workflow) logAudit(ctx context.Context, event string, actor domain.Actor, req domain.ApprovalRequest) {
	w.logger.InfoContext(ctx, event,
		"event", event,
		"log_type", "audit",
		"approval_request_id", req.ID,
		"kind", req.Kind,
		"status", req.Status,
		"prison_id", req.PrisonID,
		"location_key", req.LocationKey,
		"actor", actor.Username,
	)
}

// changedLocations lists the locations a transaction touched, in order.
func changedLocations(changes []domain.Change) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range changes {
		if c.Entity != domain.EntityLocation || seen[c.EntityID] {
			continue
		}
		seen[c.EntityID] = true
		out = append(out, c.EntityID)
	}
	return out
}
