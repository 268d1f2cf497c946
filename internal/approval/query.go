package approval

import (
	"context"

	"locationcore/pkg/domain"
)

// GetRequest returns one approval request.
func (w *Workflow) GetRequest(ctx context.Context, id string) (domain.ApprovalRequest, error) {
	var req domain.ApprovalRequest
	err := w.store.View(ctx, func(view domain.TransactionView) error {
		var ok bool
		if req, ok = view.FindApprovalRequest(id); !ok {
			return domain.NotFound(domain.ReasonApprovalRequestNotFound, "approval request %s not found", id)
		}
		return nil
	})
	return req, err
}

// ListRequests returns a prison's requests, optionally filtered by status.
func (w *Workflow) ListRequests(ctx context.Context, prisonID string, status domain.ApprovalStatus) ([]domain.ApprovalRequest, error) {
	var out []domain.ApprovalRequest
	err := w.store.View(ctx, func(view domain.TransactionView) error {
		for _, req := range view.ListApprovalRequests(prisonID) {
			if status == "" || req.Status == status {
				out = append(out, req)
			}
		}
		return nil
	})
	return out, err
}
