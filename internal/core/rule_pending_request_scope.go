package core

import (
	"context"
	"fmt"

	"locationcore/pkg/domain"
)

// PendingRequestScopeRule enforces that a location subtree is owned by at
// most one PENDING approval request, that the owner's lock covers the whole
// subtree, and that a prison has at most one pending signed operation
// capacity request.
func PendingRequestScopeRule() domain.Rule {
	return pendingRequestScopeRule{}
}

type pendingRequestScopeRule struct{}

func (pendingRequestScopeRule) Name() string { return "pending_request_scope" }

func (r pendingRequestScopeRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, prisonID := range touchedBy(changes, domain.EntityApprovalRequest, domain.EntityLocation) {
		h := domain.NewHierarchy(view.ListLocations(prisonID))
		owner := make(map[string]string)
		pending := make(map[string]bool)
		signedOpCap := ""

		for _, req := range view.ListApprovalRequests(prisonID) {
			if !req.IsPending() {
				continue
			}
			pending[req.ID] = true
			if req.Kind == domain.KindSignedOperationCapacity {
				if signedOpCap != "" {
					res.Violations = append(res.Violations, r.conflict(req.ID,
						fmt.Sprintf("prison %s already has pending signed operation capacity request %s", prisonID, signedOpCap)))
				}
				signedOpCap = req.ID
				continue
			}
			subtree := h.Subtree(req.LocationID)
			if len(subtree) == 0 {
				res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeNotFound, domain.ReasonLocationNotFound,
					domain.EntityApprovalRequest, req.ID, fmt.Sprintf("approval request %s targets missing location %s", req.ID, req.LocationID)))
				continue
			}
			for _, node := range subtree {
				if other, taken := owner[node.ID]; taken {
					res.Violations = append(res.Violations, r.conflict(req.ID,
						fmt.Sprintf("location %s is already covered by pending approval request %s", node.Key(), other)))
					break
				}
				owner[node.ID] = req.ID
				if !node.IsLocked() || node.PendingApprovalRequestID != req.ID {
					res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeConflict, domain.ReasonLocationLocked,
						domain.EntityLocation, node.ID, fmt.Sprintf("location %s is not locked by pending request %s", node.Key(), req.ID)))
				}
			}
		}

		for _, node := range view.ListLocations(prisonID) {
			if node.IsLocked() && !pending[node.PendingApprovalRequestID] {
				res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeConflict, domain.ReasonLocationLocked,
					domain.EntityLocation, node.ID, fmt.Sprintf("location %s is locked by request %q which is not pending", node.Key(), node.PendingApprovalRequestID)))
			}
		}
	}
	return res, nil
}

func (r pendingRequestScopeRule) conflict(requestID, message string) domain.Violation {
	return blocking(r.Name(), domain.CodeConflict, domain.ReasonApprovalRequestAlreadyExists,
		domain.EntityApprovalRequest, requestID, message)
}

// touchedBy returns the prisons whose entities of the given types changed.
func touchedBy(changes []domain.Change, entities ...domain.EntityType) []string {
	wanted := make(map[domain.EntityType]bool, len(entities))
	for _, e := range entities {
		wanted[e] = true
	}
	var filtered []domain.Change
	for _, c := range changes {
		if wanted[c.Entity] {
			filtered = append(filtered, c)
		}
	}
	return domain.TouchedPrisons(filtered)
}
