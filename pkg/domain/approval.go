package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ApprovalRequestKind discriminates the payload of an ApprovalRequest.
type ApprovalRequestKind string

const (
	KindDraft                   ApprovalRequestKind = "DRAFT"
	KindDeactivation            ApprovalRequestKind = "DEACTIVATION"
	KindReactivation            ApprovalRequestKind = "REACTIVATION"
	KindCellMark                ApprovalRequestKind = "CELL_MARK"
	KindCellSanitation          ApprovalRequestKind = "CELL_SANITATION"
	KindCapacityChange          ApprovalRequestKind = "CAPACITY_CHANGE"
	KindSignedOperationCapacity ApprovalRequestKind = "SIGNED_OP_CAP"
)

// Valid reports whether k is a known kind.
func (k ApprovalRequestKind) Valid() bool {
	switch k {
	case KindDraft, KindDeactivation, KindReactivation, KindCellMark,
		KindCellSanitation, KindCapacityChange, KindSignedOperationCapacity:
		return true
	}
	return false
}

// IsLocationLinked reports whether requests of this kind target a location.
func (k ApprovalRequestKind) IsLocationLinked() bool {
	return k.Valid() && k != KindSignedOperationCapacity
}

// RequiresCell reports whether the kind can only target a cell.
func (k ApprovalRequestKind) RequiresCell() bool {
	switch k {
	case KindCellMark, KindCellSanitation, KindCapacityChange:
		return true
	}
	return false
}

// ApprovalStatus is the state of an approval request.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "PENDING"
	ApprovalApproved  ApprovalStatus = "APPROVED"
	ApprovalRejected  ApprovalStatus = "REJECTED"
	ApprovalWithdrawn ApprovalStatus = "WITHDRAWN"
)

// Valid reports whether s is a known status.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalWithdrawn:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected || s == ApprovalWithdrawn
}

// CapacityDeltas records the capacity effect a request would have once approved.
type CapacityDeltas struct {
	CertifiedNormalAccommodationChange int `json:"certified_normal_accommodation_change"`
	WorkingCapacityChange              int `json:"working_capacity_change"`
	MaxCapacityChange                  int `json:"max_capacity_change"`
	SignedOperationCapacityChange      int `json:"signed_operation_capacity_change"`
}

// DeltasBetween returns to minus from as capacity deltas.
func DeltasBetween(from, to Capacity) CapacityDeltas {
	return CapacityDeltas{
		CertifiedNormalAccommodationChange: to.CertifiedNormalAccommodation - from.CertifiedNormalAccommodation,
		WorkingCapacityChange:              to.WorkingCapacity - from.WorkingCapacity,
		MaxCapacityChange:                  to.MaxCapacity - from.MaxCapacity,
	}
}

// ApprovalPayload is the per-kind body of an ApprovalRequest. The set of
// implementations is closed to this package.
type ApprovalPayload interface {
	Kind() ApprovalRequestKind
	approvalPayload()
}

type DraftPayload struct{}

type DeactivationPayload struct {
	Reason                   DeactivatedReason `json:"reason"`
	Description              string            `json:"description,omitempty"`
	ProposedReactivationDate *time.Time        `json:"proposed_reactivation_date,omitempty"`
	Permanent                bool              `json:"permanent,omitempty"`
}

type ReactivationPayload struct{}

type CellMarkPayload struct {
	CurrentCellMark string `json:"current_cell_mark"`
	NewCellMark     string `json:"new_cell_mark"`
}

type CellSanitationPayload struct {
	CurrentInCellSanitation bool `json:"current_in_cell_sanitation"`
	NewInCellSanitation     bool `json:"new_in_cell_sanitation"`
}

type CapacityChangePayload struct {
	Current Capacity `json:"current"`
	New     Capacity `json:"new"`
}

type SignedOperationCapacityPayload struct {
	Current int    `json:"current"`
	New     int    `json:"new"`
	Reason  string `json:"reason,omitempty"`
}

func (DraftPayload) Kind() ApprovalRequestKind          { return KindDraft }
func (DeactivationPayload) Kind() ApprovalRequestKind   { return KindDeactivation }
func (ReactivationPayload) Kind() ApprovalRequestKind   { return KindReactivation }
func (CellMarkPayload) Kind() ApprovalRequestKind       { return KindCellMark }
func (CellSanitationPayload) Kind() ApprovalRequestKind { return KindCellSanitation }
func (CapacityChangePayload) Kind() ApprovalRequestKind { return KindCapacityChange }
func (SignedOperationCapacityPayload) Kind() ApprovalRequestKind {
	return KindSignedOperationCapacity
}

func (DraftPayload) approvalPayload()                   {}
func (DeactivationPayload) approvalPayload()            {}
func (ReactivationPayload) approvalPayload()            {}
func (CellMarkPayload) approvalPayload()                {}
func (CellSanitationPayload) approvalPayload()          {}
func (CapacityChangePayload) approvalPayload()          {}
func (SignedOperationCapacityPayload) approvalPayload() {}

// ApprovalRequest is the envelope shared by every request kind.
type ApprovalRequest struct {
	Base
	PrisonID               string              `json:"prison_id"`
	Kind                   ApprovalRequestKind `json:"kind"`
	Status                 ApprovalStatus      `json:"status"`
	RequestedBy            string              `json:"requested_by"`
	RequestedDate          time.Time           `json:"requested_date"`
	ApprovedOrRejectedBy   string              `json:"approved_or_rejected_by,omitempty"`
	ApprovedOrRejectedDate *time.Time          `json:"approved_or_rejected_date,omitempty"`
	Comments               string              `json:"comments,omitempty"`
	LocationID             string              `json:"location_id,omitempty"`
	LocationKey            string              `json:"location_key,omitempty"`
	Snapshot               *LocationSnapshot   `json:"snapshot,omitempty"`
	Deltas                 CapacityDeltas      `json:"deltas"`
	Payload                ApprovalPayload     `json:"-"`
}

func (r ApprovalRequest) IsPending() bool { return r.Status == ApprovalPending }

// Resolve moves a pending request to a terminal status.
func (r *ApprovalRequest) Resolve(status ApprovalStatus, by string, at time.Time, comments string) error {
	if !r.IsPending() {
		return IllegalState(ReasonApprovalRequestNotInPendingStatus, "approval request %s is %s, not PENDING", r.ID, r.Status)
	}
	if !status.IsTerminal() {
		return Validation(ReasonInvalidRequest, "cannot resolve approval request to %s", status)
	}
	r.Status = status
	r.ApprovedOrRejectedBy = by
	when := at
	r.ApprovedOrRejectedDate = &when
	if comments != "" {
		r.Comments = comments
	}
	return nil
}

// Clone returns a deep copy.
func (r ApprovalRequest) Clone() ApprovalRequest {
	out := r
	out.ApprovedOrRejectedDate = cloneTime(r.ApprovedOrRejectedDate)
	if r.Snapshot != nil {
		snap := r.Snapshot.Clone()
		out.Snapshot = &snap
	}
	if p, ok := r.Payload.(DeactivationPayload); ok {
		p.ProposedReactivationDate = cloneTime(p.ProposedReactivationDate)
		out.Payload = p
	}
	return out
}

// MarshalJSON encodes the payload next to the envelope, keyed by Kind.
func (r ApprovalRequest) MarshalJSON() ([]byte, error) {
	type envelope ApprovalRequest
	var raw json.RawMessage
	if r.Payload != nil {
		if r.Payload.Kind() != r.Kind {
			return nil, fmt.Errorf("approval request %s: payload kind %s does not match %s", r.ID, r.Payload.Kind(), r.Kind)
		}
		encoded, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	return json.Marshal(struct {
		envelope
		Payload json.RawMessage `json:"payload,omitempty"`
	}{envelope: envelope(r), Payload: raw})
}

// UnmarshalJSON decodes the envelope and then the payload selected by Kind.
func (r *ApprovalRequest) UnmarshalJSON(data []byte) error {
	type envelope ApprovalRequest
	var decoded struct {
		envelope
		Payload json.RawMessage `json:"payload,omitempty"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = ApprovalRequest(decoded.envelope)
	payload, err := DecodeApprovalPayload(r.Kind, decoded.Payload)
	if err != nil {
		return err
	}
	r.Payload = payload
	return nil
}

// DecodeApprovalPayload decodes raw JSON into the payload type for kind.
func DecodeApprovalPayload(kind ApprovalRequestKind, raw json.RawMessage) (ApprovalPayload, error) {
	switch kind {
	case KindDraft:
		return decodeInto[DraftPayload](raw)
	case KindDeactivation:
		return decodeInto[DeactivationPayload](raw)
	case KindReactivation:
		return decodeInto[ReactivationPayload](raw)
	case KindCellMark:
		return decodeInto[CellMarkPayload](raw)
	case KindCellSanitation:
		return decodeInto[CellSanitationPayload](raw)
	case KindCapacityChange:
		return decodeInto[CapacityChangePayload](raw)
	case KindSignedOperationCapacity:
		return decodeInto[SignedOperationCapacityPayload](raw)
	default:
		return nil, fmt.Errorf("unknown approval request kind %q", kind)
	}
}

func decodeInto[T ApprovalPayload](raw json.RawMessage) (ApprovalPayload, error) {
	var out T
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
