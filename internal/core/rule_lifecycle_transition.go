package core

import (
	"context"
	"fmt"

	"locationcore/pkg/domain"
)

// LifecycleTransitionRule blocks unknown states and exits from terminal
// states for approval requests and locations.
func LifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

type lifecycleMachine struct {
	label     string
	code      domain.ErrorCode
	reason    domain.Reason
	terminal  map[string]struct{}
	valid     map[string]struct{}
	extractor func(payload domain.ChangePayload) (id string, state string, ok bool)
}

var lifecycleMachines = map[domain.EntityType]lifecycleMachine{
	domain.EntityApprovalRequest: {
		label:  "approval request",
		code:   domain.CodeIllegalStateTransition,
		reason: domain.ReasonApprovalRequestNotInPendingStatus,
		terminal: toSet(
			string(domain.ApprovalApproved),
			string(domain.ApprovalRejected),
			string(domain.ApprovalWithdrawn),
		),
		valid: toSet(
			string(domain.ApprovalPending),
			string(domain.ApprovalApproved),
			string(domain.ApprovalRejected),
			string(domain.ApprovalWithdrawn),
		),
		extractor: func(payload domain.ChangePayload) (string, string, bool) {
			req, ok := decodeChangePayload[domain.ApprovalRequest](payload)
			if !ok {
				return "", "", false
			}
			return req.ID, string(req.Status), true
		},
	},
	domain.EntityLocation: {
		label:    "location",
		code:     domain.CodeIllegalStateTransition,
		reason:   domain.ReasonLocationAlreadyDeactivated,
		terminal: toSet(string(domain.StatusArchived)),
		valid: toSet(
			string(domain.StatusDraft),
			string(domain.StatusActive),
			string(domain.StatusInactive),
			string(domain.StatusArchived),
		),
		extractor: func(payload domain.ChangePayload) (string, string, bool) {
			loc, ok := decodeChangePayload[domain.Location](payload)
			if !ok {
				return "", "", false
			}
			return loc.ID, string(loc.EffectiveStatus()), true
		},
	},
}

func (lifecycleTransitionRule) Name() string { return "lifecycle_transition" }

func (r lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		machine, ok := lifecycleMachines[change.Entity]
		if !ok {
			continue
		}

		afterID, afterState, hasAfter := machine.extractor(change.After)
		if hasAfter {
			if _, valid := machine.valid[afterState]; !valid {
				res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeValidation, domain.ReasonInvalidRequest,
					change.Entity, afterID, fmt.Sprintf("%s %s is set to invalid state %q", machine.label, afterID, afterState)))
				continue
			}
		}

		beforeID, beforeState, ok := machine.extractor(change.Before)
		if !ok || !hasAfter {
			continue
		}
		if _, terminal := machine.terminal[beforeState]; !terminal {
			continue
		}
		if afterState != beforeState {
			res.Violations = append(res.Violations, blocking(r.Name(), machine.code, machine.reason,
				change.Entity, beforeID, fmt.Sprintf("cannot move %s %s from terminal state %s to %s", machine.label, beforeID, beforeState, afterState)))
		}
	}
	return res, nil
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
