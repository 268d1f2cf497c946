package approval

import (
	"time"

	"locationcore/internal/certificate"
	"locationcore/pkg/domain"
)

func resolvePayload(in RequestInput) (domain.ApprovalPayload, error) {
	payload := in.Payload
	if payload == nil {
		switch in.Kind {
		case domain.KindDraft:
			payload = domain.DraftPayload{}
		case domain.KindReactivation:
			payload = domain.ReactivationPayload{}
		default:
			return nil, domain.Validation(domain.ReasonInvalidRequest, "approval request of kind %q needs a payload", in.Kind)
		}
	}
	if in.Kind != "" && in.Kind != payload.Kind() {
		return nil, domain.Validation(domain.ReasonInvalidRequest, "payload of kind %s does not match %s", payload.Kind(), in.Kind)
	}
	if !payload.Kind().IsLocationLinked() {
		return nil, domain.Validation(domain.ReasonInvalidRequest, "%s requests are not linked to a location", payload.Kind())
	}
	return payload, nil
}

// checkTarget validates that payload may be requested against loc and
// returns the payload with its current values filled in.
func checkTarget(h *domain.Hierarchy, loc domain.Location, payload domain.ApprovalPayload) (domain.ApprovalPayload, error) {
	kind := payload.Kind()
	if !loc.LocationType.IsResidential() {
		return nil, domain.Validation(domain.ReasonApprovalRequestAtWrongLevel, "%s %s is not a residential location", loc.LocationType, loc.Key())
	}
	if kind.RequiresCell() && !loc.LocationType.IsCell() {
		return nil, domain.Validation(domain.ReasonApprovalRequestAtWrongLevel, "%s requests target cells, %s is a %s", kind, loc.Key(), loc.LocationType)
	}
	if holder, locked := lockedAround(h, loc.ID); locked {
		return nil, domain.Conflict(domain.ReasonApprovalRequestAlreadyExists,
			"location %s is covered by pending approval request %s", loc.Key(), holder)
	}
	if kind == domain.KindDraft {
		if !loc.IsDraft() {
			return nil, domain.Validation(domain.ReasonLocationNotDraft, "location %s is %s, not DRAFT", loc.Key(), loc.EffectiveStatus())
		}
		if parent, ok := h.Parent(loc.ID); ok && parent.IsDraft() {
			return nil, domain.Validation(domain.ReasonApprovalRequestAtWrongLevel,
				"parent %s is also DRAFT; request approval for the top DRAFT location", parent.Key())
		}
		return payload, nil
	}
	if loc.IsDraft() {
		return nil, domain.Validation(domain.ReasonInvalidRequest, "DRAFT location %s is approved with a DRAFT request", loc.Key())
	}

	switch p := payload.(type) {
	case domain.DeactivationPayload:
		if loc.IsPermanentlyDeactivated() || (h.IsDeactivated(loc.ID) && !p.Permanent) {
			return nil, domain.Conflict(domain.ReasonLocationAlreadyDeactivated, "location %s is already deactivated", loc.Key())
		}
		if p.Reason == "" {
			return nil, domain.Validation(domain.ReasonInvalidRequest, "deactivation of %s needs a reason", loc.Key())
		}
	case domain.ReactivationPayload:
		if loc.IsPermanentlyDeactivated() {
			return nil, domain.Conflict(domain.ReasonLocationAlreadyDeactivated, "location %s is permanently deactivated", loc.Key())
		}
		if !loc.IsDeactivated() {
			return nil, domain.Conflict(domain.ReasonLocationNotDeactivated, "location %s is not deactivated", loc.Key())
		}
		for _, a := range h.Ancestors(loc.ID) {
			if a.IsDeactivated() {
				return nil, domain.Validation(domain.ReasonApprovalRequestAtWrongLevel,
					"ancestor %s is deactivated; reactivate it instead", a.Key())
			}
		}
	case domain.CellMarkPayload:
		p.CurrentCellMark = loc.CellMark
		return p, nil
	case domain.CellSanitationPayload:
		p.CurrentInCellSanitation = loc.InCellSanitation != nil && *loc.InCellSanitation
		return p, nil
	case domain.CapacityChangePayload:
		if err := domain.ValidateCapacity(loc.AccommodationType, loc.SpecialistCellTypes, p.New); err != nil {
			return nil, err
		}
		p.Current = loc.StoredCapacity()
		return p, nil
	}
	return payload, nil
}

// lockedAround finds a lock on id, its ancestors or its descendants.
func lockedAround(h *domain.Hierarchy, id string) (string, bool) {
	nodes := h.Subtree(id)
	nodes = append(nodes, h.Ancestors(id)...)
	for _, n := range nodes {
		if n.IsLocked() {
			return n.PendingApprovalRequestID, true
		}
	}
	return "", false
}

// apply carries out payload on the subtree of targetID in h. Nodes must be
// unlocked.
func apply(h *domain.Hierarchy, targetID string, payload domain.ApprovalPayload, at time.Time, policy domain.DeactivationPolicy) error {
	target, ok := h.Node(targetID)
	if !ok {
		return domain.NotFound(domain.ReasonLocationNotFound, "location %s not found", targetID)
	}
	switch p := payload.(type) {
	case domain.DraftPayload:
		h.ActivateDrafts(targetID)
	case domain.DeactivationPayload:
		h.DeactivateSubtree(targetID, domain.Deactivation{
			Reason:                   p.Reason,
			Description:              p.Description,
			ProposedReactivationDate: p.ProposedReactivationDate,
			Permanent:                p.Permanent,
		}, at, policy)
	case domain.ReactivationPayload:
		h.ReactivateSubtree(targetID)
	case domain.CellMarkPayload:
		target.CellMark = p.NewCellMark
		h.Replace(target)
	case domain.CellSanitationPayload:
		v := p.NewInCellSanitation
		target.InCellSanitation = &v
		h.Replace(target)
	case domain.CapacityChangePayload:
		c := p.New
		target.Capacity = &c
		h.Replace(target)
	default:
		return domain.Validation(domain.ReasonInvalidRequest, "cannot apply %T to a location", payload)
	}
	return nil
}

// preview returns the change the payload would make to the certified
// totals of the prison.
func preview(locations []domain.Location, targetID string, payload domain.ApprovalPayload, at time.Time, policy domain.DeactivationPolicy) (domain.CapacityDeltas, error) {
	_, before := certificate.Layout(domain.NewHierarchy(locations))
	h := domain.NewHierarchy(locations)
	if err := apply(h, targetID, payload, at, policy); err != nil {
		return domain.CapacityDeltas{}, err
	}
	_, after := certificate.Layout(h)
	return domain.DeltasBetween(before, after), nil
}
