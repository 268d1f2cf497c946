// Package events carries what happened after a committed change to the
// outside world: domain events for downstream consumers and audit records
// for every mutated entity.
package events

import (
	"context"
	"errors"
	"time"

	"locationcore/pkg/domain"
)

// Type names a domain event.
type Type string

const (
	LocationCreated           Type = "location.created"
	LocationAmended           Type = "location.amended"
	LocationDeleted           Type = "location.deleted"
	ApprovalRequested         Type = "location.approval.requested"
	ApprovalRejected          Type = "location.approval.rejected"
	ApprovalWithdrawn         Type = "location.approval.withdrawn"
	CertificateIssued         Type = "certificate.issued"
	SignedOperationCapChanged Type = "prison.signed-operation-capacity.changed"
)

// Event is published once per outcome after the store transaction commits.
type Event struct {
	ID                string    `json:"id"`
	Type              Type      `json:"type"`
	PrisonID          string    `json:"prison_id"`
	LocationIDs       []string  `json:"location_ids,omitempty"`
	ApprovalRequestID string    `json:"approval_request_id,omitempty"`
	CertificateID     string    `json:"certificate_id,omitempty"`
	TransactionID     string    `json:"transaction_id,omitempty"`
	Actor             string    `json:"actor"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// AuditRecord describes one mutated entity.
type AuditRecord struct {
	ID            string            `json:"id"`
	PrisonID      string            `json:"prison_id"`
	Entity        domain.EntityType `json:"entity"`
	EntityID      string            `json:"entity_id"`
	Action        domain.Action     `json:"action"`
	Operation     string            `json:"operation"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Actor         string            `json:"actor"`
	At            time.Time         `json:"at"`
}

// Publisher delivers domain events.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// AuditSink stores audit records.
type AuditSink interface {
	Record(ctx context.Context, records ...AuditRecord) error
}

// NewEvent stamps an event with a fresh id.
func NewEvent(t Type, prisonID string, actor domain.Actor) Event {
	return Event{
		ID:         domain.NewID(),
		Type:       t,
		PrisonID:   prisonID,
		Actor:      actor.Username,
		OccurredAt: actor.Now(),
	}
}

// AuditFromChanges builds one record per change. History rows are skipped;
// they are the ledger itself.
func AuditFromChanges(changes []domain.Change, operation, txID string, actor domain.Actor) []AuditRecord {
	at := actor.Now()
	out := make([]AuditRecord, 0, len(changes))
	for _, c := range changes {
		if c.Entity == domain.EntityLocationHistory {
			continue
		}
		out = append(out, AuditRecord{
			ID:            domain.NewID(),
			PrisonID:      c.PrisonID,
			Entity:        c.Entity,
			EntityID:      c.EntityID,
			Action:        c.Action,
			Operation:     operation,
			TransactionID: txID,
			Actor:         actor.Username,
			At:            at,
		})
	}
	return out
}

// Fanout sends to every publisher and sink, joining their errors.
type Fanout struct {
	Publishers []Publisher
	Sinks      []AuditSink
}

func (f Fanout) Publish(ctx context.Context, evts ...Event) error {
	var errs []error
	for _, p := range f.Publishers {
		if err := p.Publish(ctx, evts...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Record(ctx context.Context, records ...AuditRecord) error {
	var errs []error
	for _, s := range f.Sinks {
		if err := s.Record(ctx, records...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops everything.
type Discard struct{}

func (Discard) Publish(context.Context, ...Event) error      { return nil }
func (Discard) Record(context.Context, ...AuditRecord) error { return nil }
