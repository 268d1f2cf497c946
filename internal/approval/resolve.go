package approval

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"locationcore/internal/certificate"
	"locationcore/internal/events"
	"locationcore/internal/ledger"
	"locationcore/pkg/domain"
)

// Approve applies a PENDING request to the live locations, writes the
// ledger, issues a new current certificate and marks the request APPROVED,
// all in one store transaction.
func (w *Workflow) Approve(ctx context.Context, actor domain.Actor, requestID, comments string) (out Outcome, err error) {
	ctx, span := w.start(ctx, "approval.Approve", attribute.String("approval_request.id", requestID))
	started := time.Now()
	defer func() { w.finish(span, "approve", started, err) }()

	pending, err := w.GetRequest(ctx, requestID)
	if err != nil {
		return Outcome{}, err
	}
	fallback, err := w.configuredSignedOperationCapacity(ctx, pending.PrisonID)
	if err != nil {
		return Outcome{}, err
	}

	res, err := w.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		req, err := pendingRequest(tx.Snapshot(), requestID)
		if err != nil {
			return err
		}
		rec, err := ledger.Begin(tx, req.PrisonID, domain.TransactionApprovalApproved, detail(req, "approved"), actor)
		if err != nil {
			return err
		}
		now := actor.Now()
		approval := certificate.Approval{RequestID: req.ID, ApprovedBy: actor.Username, ApprovedAt: now}

		var cert domain.CellCertificate
		if req.Kind.IsLocationLinked() {
			if err := w.release(tx, rec, req, now, true); err != nil {
				return err
			}
			soc := fallback
			if stored, ok := tx.Snapshot().FindSignedOperationCapacity(req.PrisonID); ok {
				soc = stored.Value
			}
			if cert, err = certificate.Generate(tx, req.PrisonID, approval, soc); err != nil {
				return err
			}
		} else {
			p, ok := req.Payload.(domain.SignedOperationCapacityPayload)
			if !ok {
				return domain.Validation(domain.ReasonInvalidRequest, "approval request %s has no signed operation capacity payload", req.ID)
			}
			if _, err := tx.PutSignedOperationCapacity(domain.SignedOperationCapacity{
				PrisonID:          req.PrisonID,
				Value:             p.New,
				ApprovedBy:        actor.Username,
				ApprovedDate:      now,
				ApprovalRequestID: req.ID,
			}); err != nil {
				return err
			}
			if cert, err = certificate.RollSignedOperationCapacity(tx, req.PrisonID, approval, p.New); err != nil {
				return err
			}
		}

		resolved, err := tx.UpdateApprovalRequest(req.ID, func(r *domain.ApprovalRequest) error {
			return r.Resolve(domain.ApprovalApproved, actor.Username, now, comments)
		})
		if err != nil {
			return err
		}
		linked, err := rec.Close()
		if err != nil {
			return err
		}
		out = Outcome{
			Request:              resolved,
			Certificate:          &cert,
			NewLocationActivated: req.Kind == domain.KindDraft,
			TransactionID:        linked.ID,
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	w.metrics.IncOutcome(string(out.Request.Kind), string(domain.ApprovalApproved))
	w.metrics.CertificateIssued(out.Request.PrisonID, out.Certificate.TotalWorkingCapacity)
	w.logAudit(ctx, "approval_approved", actor, out.Request)

	evtType := events.LocationAmended
	switch {
	case out.NewLocationActivated:
		evtType = events.LocationCreated
	case out.Request.Kind == domain.KindSignedOperationCapacity:
		evtType = events.SignedOperationCapChanged
	}
	evt := events.NewEvent(evtType, out.Request.PrisonID, actor)
	evt.LocationIDs = changedLocations(res.Changes)
	evt.ApprovalRequestID = out.Request.ID
	evt.CertificateID = out.Certificate.ID
	evt.TransactionID = out.TransactionID
	issued := events.NewEvent(events.CertificateIssued, out.Request.PrisonID, actor)
	issued.ApprovalRequestID = out.Request.ID
	issued.CertificateID = out.Certificate.ID
	issued.TransactionID = out.TransactionID
	w.deliver(ctx, "approve", actor, res, out.TransactionID, evt, issued)
	w.archiveCertificate(ctx, *out.Certificate)
	return out, nil
}

// Reject closes a PENDING request without touching capacity or
// certification and releases its lock.
func (w *Workflow) Reject(ctx context.Context, actor domain.Actor, requestID, comments string) (Outcome, error) {
	return w.close(ctx, actor, requestID, comments, domain.ApprovalRejected)
}

// Withdraw is Reject initiated by the requester.
func (w *Workflow) Withdraw(ctx context.Context, actor domain.Actor, requestID, comments string) (Outcome, error) {
	return w.close(ctx, actor, requestID, comments, domain.ApprovalWithdrawn)
}

func (w *Workflow) close(ctx context.Context, actor domain.Actor, requestID, comments string, status domain.ApprovalStatus) (out Outcome, err error) {
	op, txType, evtType := "reject", domain.TransactionApprovalRejected, events.ApprovalRejected
	if status == domain.ApprovalWithdrawn {
		op, txType, evtType = "withdraw", domain.TransactionApprovalWithdrawn, events.ApprovalWithdrawn
	}
	ctx, span := w.start(ctx, "approval."+op, attribute.String("approval_request.id", requestID))
	started := time.Now()
	defer func() { w.finish(span, op, started, err) }()

	res, err := w.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		req, err := pendingRequest(tx.Snapshot(), requestID)
		if err != nil {
			return err
		}
		rec, err := ledger.Begin(tx, req.PrisonID, txType, detail(req, string(status)), actor)
		if err != nil {
			return err
		}
		now := actor.Now()
		if req.Kind.IsLocationLinked() {
			if err := w.release(tx, rec, req, now, false); err != nil {
				return err
			}
		}
		resolved, err := tx.UpdateApprovalRequest(req.ID, func(r *domain.ApprovalRequest) error {
			return r.Resolve(status, actor.Username, now, comments)
		})
		if err != nil {
			return err
		}
		linked, err := rec.Close()
		if err != nil {
			return err
		}
		out = Outcome{Request: resolved, TransactionID: linked.ID}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	w.metrics.IncOutcome(string(out.Request.Kind), string(status))
	w.logAudit(ctx, "approval_"+op, actor, out.Request)
	evt := events.NewEvent(evtType, out.Request.PrisonID, actor)
	evt.LocationIDs = changedLocations(res.Changes)
	evt.ApprovalRequestID = out.Request.ID
	evt.TransactionID = out.TransactionID
	w.deliver(ctx, op, actor, res, out.TransactionID, evt)
	return out, nil
}

// release unlocks the request's subtree and, when applying, carries out the
// payload. One history row is written per changed attribute.
func (w *Workflow) release(tx domain.Transaction, rec *ledger.Recorder, req domain.ApprovalRequest, now time.Time, applying bool) error {
	h := domain.NewHierarchy(tx.Snapshot().ListLocations(req.PrisonID))
	subtree := h.Subtree(req.LocationID)
	if len(subtree) == 0 {
		return domain.NotFound(domain.ReasonLocationNotFound, "location %s of approval request %s not found", req.LocationID, req.ID)
	}
	for _, node := range subtree {
		if node.PendingApprovalRequestID == req.ID {
			node.Unlock()
			h.Replace(node)
		}
	}
	if applying {
		if err := apply(h, req.LocationID, req.Payload, now, w.policy); err != nil {
			return err
		}
	}
	for _, before := range subtree {
		next, _ := h.Node(before.ID)
		if reflect.DeepEqual(before, next) {
			continue
		}
		after, err := tx.UpdateLocation(before.ID, func(l *domain.Location) error {
			*l = next
			return nil
		})
		if err != nil {
			return err
		}
		if err := rec.Diff(before, after); err != nil {
			return err
		}
	}
	return nil
}

func pendingRequest(view domain.TransactionView, id string) (domain.ApprovalRequest, error) {
	req, ok := view.FindApprovalRequest(id)
	if !ok {
		return domain.ApprovalRequest{}, domain.NotFound(domain.ReasonApprovalRequestNotFound, "approval request %s not found", id)
	}
	if !req.IsPending() {
		return domain.ApprovalRequest{}, domain.IllegalState(domain.ReasonApprovalRequestNotInPendingStatus,
			"approval request %s is %s, not PENDING", id, req.Status)
	}
	return req, nil
}

func detail(req domain.ApprovalRequest, verb string) string {
	if req.LocationKey == "" {
		return fmt.Sprintf("%s request %s %s", req.Kind, req.ID, verb)
	}
	return fmt.Sprintf("%s request %s for %s %s", req.Kind, req.ID, req.LocationKey, verb)
}
