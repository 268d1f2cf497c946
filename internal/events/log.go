package events

import (
	"context"
	"log/slog"
)

// LogSink writes events and audit records as structured log lines.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (l *LogSink) Publish(ctx context.Context, evts ...Event) error {
	for _, e := range evts {
		l.logger.InfoContext(ctx, string(e.Type),
			"log_type", "event",
			"event_id", e.ID,
			"prison_id", e.PrisonID,
			"location_ids", e.LocationIDs,
			"approval_request_id", e.ApprovalRequestID,
			"certificate_id", e.CertificateID,
			"actor", e.Actor,
		)
	}
	return nil
}

func (l *LogSink) Record(ctx context.Context, records ...AuditRecord) error {
	for _, r := range records {
		l.logger.InfoContext(ctx, r.Operation,
			"log_type", "audit",
			"event", string(r.Entity)+"_"+string(r.Action),
			"prison_id", r.PrisonID,
			"entity_id", r.EntityID,
			"transaction_id", r.TransactionID,
			"actor", r.Actor,
		)
	}
	return nil
}
