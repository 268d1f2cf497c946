package approval

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"locationcore/internal/events"
	"locationcore/internal/ledger"
	"locationcore/internal/lock"
	"locationcore/pkg/domain"
)

// RequestApproval freezes the target subtree, locks it and stores a PENDING
// request. The lock check and the insert share one store transaction and the
// commit rules reject a second pending request over the same subtree.
func (w *Workflow) RequestApproval(ctx context.Context, actor domain.Actor, in RequestInput) (_ domain.ApprovalRequest, err error) {
	ctx, span := w.start(ctx, "approval.RequestApproval", attribute.String("location.id", in.LocationID))
	started := time.Now()
	defer func() { w.finish(span, "request_approval", started, err) }()

	payload, err := resolvePayload(in)
	if err != nil {
		return domain.ApprovalRequest{}, err
	}
	loc, err := w.findLocation(ctx, in.LocationID)
	if err != nil {
		return domain.ApprovalRequest{}, err
	}
	if err := w.requireCertification(ctx, loc.PrisonID); err != nil {
		return domain.ApprovalRequest{}, err
	}
	release, err := w.obtain(ctx, loc.PrisonID)
	if err != nil {
		return domain.ApprovalRequest{}, err
	}
	defer release()

	var created domain.ApprovalRequest
	var txID string
	res, err := w.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		target, ok := view.FindLocation(in.LocationID)
		if !ok {
			return domain.NotFound(domain.ReasonLocationNotFound, "location %s not found", in.LocationID)
		}
		locations := view.ListLocations(target.PrisonID)
		h := domain.NewHierarchy(locations)
		filled, err := checkTarget(h, target, payload)
		if err != nil {
			return err
		}
		now := actor.Now()
		deltas, err := preview(locations, target.ID, filled, now, w.policy)
		if err != nil {
			return err
		}
		snap, _ := domain.Freeze(h, target.ID, func(l domain.Location) bool { return l.LocationType.IsResidential() })

		request := domain.ApprovalRequest{
			Base:          domain.Base{ID: domain.NewID()},
			PrisonID:      target.PrisonID,
			Kind:          filled.Kind(),
			Status:        domain.ApprovalPending,
			RequestedBy:   actor.Username,
			RequestedDate: now,
			Comments:      in.Comments,
			LocationID:    target.ID,
			LocationKey:   target.Key(),
			Snapshot:      &snap,
			Deltas:        deltas,
			Payload:       filled,
		}
		rec, err := ledger.Begin(tx, target.PrisonID, domain.TransactionApprovalRequested,
			fmt.Sprintf("%s approval requested for %s", request.Kind, request.LocationKey), actor)
		if err != nil {
			return err
		}
		for _, node := range h.Subtree(target.ID) {
			locked, err := tx.UpdateLocation(node.ID, func(l *domain.Location) error {
				l.Lock(request.ID)
				return nil
			})
			if err != nil {
				return err
			}
			if err := rec.Diff(node, locked); err != nil {
				return err
			}
		}
		if created, err = tx.CreateApprovalRequest(request); err != nil {
			return err
		}
		linked, err := rec.Close()
		txID = linked.ID
		return err
	})
	if err != nil {
		return domain.ApprovalRequest{}, err
	}

	w.metrics.IncRequest(string(created.Kind))
	w.logAudit(ctx, "approval_requested", actor, created)
	evt := events.NewEvent(events.ApprovalRequested, created.PrisonID, actor)
	evt.LocationIDs = changedLocations(res.Changes)
	evt.ApprovalRequestID = created.ID
	evt.TransactionID = txID
	w.deliver(ctx, "request_approval", actor, res, txID, evt)
	return created, nil
}

// RequestSignedOperationCapacityChange stores a PENDING request to change a
// prison's signed operation capacity. It does not lock any location and is
// independent of location-linked requests.
func (w *Workflow) RequestSignedOperationCapacityChange(ctx context.Context, actor domain.Actor, prisonID string, newValue int, reason string) (_ domain.ApprovalRequest, err error) {
	ctx, span := w.start(ctx, "approval.RequestSignedOperationCapacityChange", attribute.String("prison.id", prisonID))
	started := time.Now()
	defer func() { w.finish(span, "request_signed_operation_capacity", started, err) }()

	if prisonID == "" {
		return domain.ApprovalRequest{}, domain.Validation(domain.ReasonInvalidRequest, "prison id is required")
	}
	if newValue < 0 {
		return domain.ApprovalRequest{}, domain.Validation(domain.ReasonCapacityInvalid, "signed operation capacity %d is negative", newValue)
	}
	if err := w.requireCertification(ctx, prisonID); err != nil {
		return domain.ApprovalRequest{}, err
	}
	fallback, err := w.configuredSignedOperationCapacity(ctx, prisonID)
	if err != nil {
		return domain.ApprovalRequest{}, err
	}
	release, err := w.obtain(ctx, prisonID)
	if err != nil {
		return domain.ApprovalRequest{}, err
	}
	defer release()

	var created domain.ApprovalRequest
	var txID string
	res, err := w.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		current := fallback
		if soc, ok := tx.Snapshot().FindSignedOperationCapacity(prisonID); ok {
			current = soc.Value
		}
		rec, err := ledger.Begin(tx, prisonID, domain.TransactionSignedOpCapRequest,
			fmt.Sprintf("signed operation capacity %d -> %d requested", current, newValue), actor)
		if err != nil {
			return err
		}
		created, err = tx.CreateApprovalRequest(domain.ApprovalRequest{
			Base:          domain.Base{ID: domain.NewID()},
			PrisonID:      prisonID,
			Kind:          domain.KindSignedOperationCapacity,
			Status:        domain.ApprovalPending,
			RequestedBy:   actor.Username,
			RequestedDate: actor.Now(),
			Comments:      reason,
			Deltas:        domain.CapacityDeltas{SignedOperationCapacityChange: newValue - current},
			Payload:       domain.SignedOperationCapacityPayload{Current: current, New: newValue, Reason: reason},
		})
		if err != nil {
			return err
		}
		linked, err := rec.Close()
		txID = linked.ID
		return err
	})
	if err != nil {
		return domain.ApprovalRequest{}, err
	}

	w.metrics.IncRequest(string(created.Kind))
	w.logAudit(ctx, "approval_requested", actor, created)
	evt := events.NewEvent(events.ApprovalRequested, prisonID, actor)
	evt.ApprovalRequestID = created.ID
	evt.TransactionID = txID
	w.deliver(ctx, "request_signed_operation_capacity", actor, res, txID, evt)
	return created, nil
}

func (w *Workflow) findLocation(ctx context.Context, id string) (domain.Location, error) {
	var loc domain.Location
	err := w.store.View(ctx, func(view domain.TransactionView) error {
		var ok bool
		if loc, ok = view.FindLocation(id); !ok {
			return domain.NotFound(domain.ReasonLocationNotFound, "location %s not found", id)
		}
		return nil
	})
	return loc, err
}

func (w *Workflow) requireCertification(ctx context.Context, prisonID string) error {
	required, err := w.prisons.IsCertificationApprovalRequired(ctx, prisonID)
	if err != nil {
		return fmt.Errorf("prison configuration for %s: %w", prisonID, err)
	}
	if !required {
		return domain.Validation(domain.ReasonLocationDoesNotRequireApproval,
			"prison %s does not require certification approval", prisonID)
	}
	return nil
}

func (w *Workflow) configuredSignedOperationCapacity(ctx context.Context, prisonID string) (int, error) {
	if w.capacity == nil {
		return 0, nil
	}
	v, err := w.capacity.GetSignedOperationCapacity(ctx, prisonID)
	if err != nil {
		return 0, fmt.Errorf("signed operation capacity for %s: %w", prisonID, err)
	}
	return v, nil
}

func (w *Workflow) obtain(ctx context.Context, prisonID string) (func(), error) {
	if w.locker == nil {
		return func() {}, nil
	}
	lease, err := w.locker.Obtain(ctx, lock.Key(prisonID))
	if err != nil {
		return nil, err
	}
	return func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			w.logger.WarnContext(ctx, "release approval lock", "prison_id", prisonID, "error", err)
		}
	}, nil
}
