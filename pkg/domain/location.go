package domain

import (
	"slices"
	"time"
)

// LocationType discriminates structural, cell and non-residential nodes.
type LocationType string

const (
	LocationTypeWing     LocationType = "WING"
	LocationTypeSpur     LocationType = "SPUR"
	LocationTypeLanding  LocationType = "LANDING"
	LocationTypeCell     LocationType = "CELL"
	LocationTypeRoom     LocationType = "ROOM"
	LocationTypeStore    LocationType = "STORE"
	LocationTypeOffice   LocationType = "OFFICE"
	LocationTypeFacility LocationType = "FACILITY"
)

// IsStructural reports whether the type is a wing, spur or landing.
func (t LocationType) IsStructural() bool {
	switch t {
	case LocationTypeWing, LocationTypeSpur, LocationTypeLanding:
		return true
	}
	return false
}

func (t LocationType) IsCell() bool { return t == LocationTypeCell }

// IsResidential reports whether the type takes part in certification.
func (t LocationType) IsResidential() bool { return t.IsStructural() || t.IsCell() }

// Valid reports whether t is a known location type.
func (t LocationType) Valid() bool {
	switch t {
	case LocationTypeRoom, LocationTypeStore, LocationTypeOffice, LocationTypeFacility:
		return true
	}
	return t.IsResidential()
}

// LocationStatus enumerates the lifecycle of a location.
type LocationStatus string

const (
	StatusDraft    LocationStatus = "DRAFT"
	StatusActive   LocationStatus = "ACTIVE"
	StatusInactive LocationStatus = "INACTIVE"
	StatusArchived LocationStatus = "ARCHIVED"
	StatusLocked   LocationStatus = "LOCKED"
)

// Valid reports whether s is a known status.
func (s LocationStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusInactive, StatusArchived, StatusLocked:
		return true
	}
	return false
}

// IsDeactivated reports whether s is INACTIVE or ARCHIVED.
func (s LocationStatus) IsDeactivated() bool {
	return s == StatusInactive || s == StatusArchived
}

type AccommodationType string

const (
	AccommodationNormal              AccommodationType = "NORMAL_ACCOMMODATION"
	AccommodationCareAndSeparation   AccommodationType = "CARE_AND_SEPARATION"
	AccommodationHealthcareInpatient AccommodationType = "HEALTHCARE_INPATIENTS"
	AccommodationOtherNonResidential AccommodationType = "OTHER_NON_RESIDENTIAL"
)

type SpecialistCellType string

const (
	SpecialistAccessibleCell      SpecialistCellType = "ACCESSIBLE_CELL"
	SpecialistBiohazard           SpecialistCellType = "BIOHAZARD_DIRTY_PROTEST"
	SpecialistConstantSupervision SpecialistCellType = "CONSTANT_SUPERVISION"
	SpecialistCSU                 SpecialistCellType = "CSU"
	SpecialistDry                 SpecialistCellType = "DRY"
	SpecialistEscapeList          SpecialistCellType = "ESCAPE_LIST"
	SpecialistIsolationDiseases   SpecialistCellType = "ISOLATION_DISEASES"
	SpecialistListenerCrisis      SpecialistCellType = "LISTENER_CRISIS"
	SpecialistLocateFlatCell      SpecialistCellType = "LOCATE_FLAT_CELL"
	SpecialistMedical             SpecialistCellType = "MEDICAL"
	SpecialistMotherAndBaby       SpecialistCellType = "MOTHER_AND_BABY"
	SpecialistSafeCell            SpecialistCellType = "SAFE_CELL"
	SpecialistUnfurnished         SpecialistCellType = "UNFURNISHED"
)

type UsedForType string

const (
	UsedForCloseSupervisionCentre UsedForType = "CLOSE_SUPERVISION_CENTRE"
	UsedForFirstNightCentre       UsedForType = "FIRST_NIGHT_CENTRE"
	UsedForHighSecurity           UsedForType = "HIGH_SECURITY"
	UsedForLongTermSentences      UsedForType = "IPP_LONG_TERM_SENTENCES"
	UsedForMotherAndBaby          UsedForType = "MOTHER_AND_BABY"
	UsedForPersonalityDisorder    UsedForType = "PERSONALITY_DISORDER"
	UsedForStandardAccommodation  UsedForType = "STANDARD_ACCOMMODATION"
	UsedForTherapeuticCommunity   UsedForType = "THERAPEUTIC_COMMUNITY"
	UsedForVulnerablePrisonerUnit UsedForType = "VULNERABLE_PRISONER_UNIT"
	UsedForYoungPersons           UsedForType = "YOUNG_PERSONS"
	UsedForOther                  UsedForType = "OTHER"
)

type DeactivatedReason string

const (
	DeactivatedDamaged        DeactivatedReason = "DAMAGED"
	DeactivatedDamp           DeactivatedReason = "DAMP"
	DeactivatedMaintenance    DeactivatedReason = "MAINTENANCE"
	DeactivatedMothballed     DeactivatedReason = "MOTHBALLED"
	DeactivatedPest           DeactivatedReason = "PEST"
	DeactivatedRefurbishment  DeactivatedReason = "REFURBISHMENT"
	DeactivatedSecurityIssue  DeactivatedReason = "SECURITY_SEALED"
	DeactivatedStaffShortage  DeactivatedReason = "STAFF_SHORTAGE"
	DeactivatedOther          DeactivatedReason = "OTHER"
	DeactivatedLocalWorkOrder DeactivatedReason = "LOCAL_WORK"
)

// Capacity is only stored on cells; structural nodes always derive it.
type Capacity struct {
	MaxCapacity                  int `json:"max_capacity"`
	WorkingCapacity              int `json:"working_capacity"`
	CertifiedNormalAccommodation int `json:"certified_normal_accommodation"`
}

// Add returns the component-wise sum.
func (c Capacity) Add(o Capacity) Capacity {
	return Capacity{
		MaxCapacity:                  c.MaxCapacity + o.MaxCapacity,
		WorkingCapacity:              c.WorkingCapacity + o.WorkingCapacity,
		CertifiedNormalAccommodation: c.CertifiedNormalAccommodation + o.CertifiedNormalAccommodation,
	}
}

// Location is one node of a prison's residential layout.
type Location struct {
	Base
	PrisonID                 string               `json:"prison_id"`
	Code                     string               `json:"code"`
	PathHierarchy            string               `json:"path_hierarchy"`
	LocalName                string               `json:"local_name,omitempty"`
	LocationType             LocationType         `json:"location_type"`
	ParentID                 *string              `json:"parent_id,omitempty"`
	Position                 int                  `json:"position"`
	Status                   LocationStatus       `json:"status"`
	PreLockStatus            LocationStatus       `json:"pre_lock_status,omitempty"`
	PendingApprovalRequestID string               `json:"pending_approval_request_id,omitempty"`
	Capacity                 *Capacity            `json:"capacity,omitempty"`
	CertifiedCell            bool                 `json:"certified_cell"`
	SpecialistCellTypes      []SpecialistCellType `json:"specialist_cell_types,omitempty"`
	UsedForTypes             []UsedForType        `json:"used_for_types,omitempty"`
	AccommodationType        AccommodationType    `json:"accommodation_type,omitempty"`
	InCellSanitation         *bool                `json:"in_cell_sanitation,omitempty"`
	CellMark                 string               `json:"cell_mark,omitempty"`
	ConvertedCellType        string               `json:"converted_cell_type,omitempty"`
	DeactivatedReason        DeactivatedReason    `json:"deactivated_reason,omitempty"`
	DeactivationDescription  string               `json:"deactivation_description,omitempty"`
	DeactivatedDate          *time.Time           `json:"deactivated_date,omitempty"`
	ProposedReactivationDate *time.Time           `json:"proposed_reactivation_date,omitempty"`
}

// Key is the store-wide unique key of the location.
func (l Location) Key() string { return LocationKey(l.PrisonID, l.PathHierarchy) }

// LocationKey joins a prison id and a path hierarchy.
func LocationKey(prisonID, path string) string { return prisonID + "-" + path }

// BuildPath derives a node's path from its parent's path and its own code.
func BuildPath(parentPath, code string) string {
	if parentPath == "" {
		return code
	}
	return parentPath + "-" + code
}

// EffectiveStatus reports the status hidden behind a LOCKED flag.
func (l Location) EffectiveStatus() LocationStatus {
	if l.Status == StatusLocked {
		return l.PreLockStatus
	}
	return l.Status
}

func (l Location) IsLocked() bool { return l.Status == StatusLocked }

func (l Location) IsDraft() bool { return l.EffectiveStatus() == StatusDraft }

// IsDeactivated reports whether the node itself is INACTIVE or ARCHIVED.
// Use Hierarchy.IsDeactivated to include ancestors.
func (l Location) IsDeactivated() bool { return l.EffectiveStatus().IsDeactivated() }

func (l Location) IsPermanentlyDeactivated() bool { return l.EffectiveStatus() == StatusArchived }

// StoredCapacity returns the cell's stored capacity, or zero.
func (l Location) StoredCapacity() Capacity {
	if l.Capacity == nil {
		return Capacity{}
	}
	return *l.Capacity
}

// HasSpecialistType reports whether any specialist cell type is set.
func (l Location) HasSpecialistType() bool { return len(l.SpecialistCellTypes) > 0 }

// Lock marks the node as owned by a pending approval request.
func (l *Location) Lock(requestID string) {
	if l.Status != StatusLocked {
		l.PreLockStatus = l.Status
	}
	l.Status = StatusLocked
	l.PendingApprovalRequestID = requestID
}

// Unlock restores the status the lock replaced.
func (l *Location) Unlock() {
	if l.Status == StatusLocked {
		l.Status = l.PreLockStatus
	}
	l.PreLockStatus = ""
	l.PendingApprovalRequestID = ""
}

// Deactivation describes how a node is taken out of use.
type Deactivation struct {
	Reason                   DeactivatedReason
	Description              string
	ProposedReactivationDate *time.Time
	Permanent                bool
}

// DeactivationPolicy decides what happens to a cell's stored working
// capacity when it is deactivated.
type DeactivationPolicy string

const (
	DeactivationPreserveWorkingCapacity DeactivationPolicy = "preserve"
	DeactivationZeroWorkingCapacity     DeactivationPolicy = "zero"
)

// ParseDeactivationPolicy defaults unknown values to preserve.
func ParseDeactivationPolicy(value string) DeactivationPolicy {
	if DeactivationPolicy(value) == DeactivationZeroWorkingCapacity {
		return DeactivationZeroWorkingCapacity
	}
	return DeactivationPreserveWorkingCapacity
}

// Deactivate sets INACTIVE (or ARCHIVED when permanent) on an unlocked node.
func (l *Location) Deactivate(d Deactivation, at time.Time, policy DeactivationPolicy) {
	l.Status = StatusInactive
	if d.Permanent {
		l.Status = StatusArchived
	}
	l.DeactivatedReason = d.Reason
	l.DeactivationDescription = d.Description
	when := at
	l.DeactivatedDate = &when
	l.ProposedReactivationDate = cloneTime(d.ProposedReactivationDate)
	if policy == DeactivationZeroWorkingCapacity && l.Capacity != nil {
		c := *l.Capacity
		c.WorkingCapacity = 0
		l.Capacity = &c
	}
}

// Reactivate returns an INACTIVE node to ACTIVE and clears deactivation data.
func (l *Location) Reactivate() {
	l.Status = StatusActive
	l.DeactivatedReason = ""
	l.DeactivationDescription = ""
	l.DeactivatedDate = nil
	l.ProposedReactivationDate = nil
}

// Clone returns a deep copy.
func (l Location) Clone() Location {
	out := l
	if l.ParentID != nil {
		parent := *l.ParentID
		out.ParentID = &parent
	}
	if l.Capacity != nil {
		c := *l.Capacity
		out.Capacity = &c
	}
	if l.InCellSanitation != nil {
		v := *l.InCellSanitation
		out.InCellSanitation = &v
	}
	out.SpecialistCellTypes = slices.Clone(l.SpecialistCellTypes)
	out.UsedForTypes = slices.Clone(l.UsedForTypes)
	out.DeactivatedDate = cloneTime(l.DeactivatedDate)
	out.ProposedReactivationDate = cloneTime(l.ProposedReactivationDate)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func parentIDOf(l Location) string {
	if l.ParentID == nil {
		return ""
	}
	return *l.ParentID
}
