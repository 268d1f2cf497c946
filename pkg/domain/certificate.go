package domain

import (
	"reflect"
	"slices"
	"time"
)

// LocationSnapshot is a frozen copy of a location and its sub-locations.
// Capacity on every node is the effective value at the time of capture.
type LocationSnapshot struct {
	ID                  string               `json:"id"`
	Code                string               `json:"code"`
	PathHierarchy       string               `json:"path_hierarchy"`
	LocalName           string               `json:"local_name,omitempty"`
	LocationType        LocationType         `json:"location_type"`
	Status              LocationStatus       `json:"status"`
	Capacity            Capacity             `json:"capacity"`
	CertifiedCell       bool                 `json:"certified_cell"`
	SpecialistCellTypes []SpecialistCellType `json:"specialist_cell_types,omitempty"`
	UsedForTypes        []UsedForType        `json:"used_for_types,omitempty"`
	AccommodationType   AccommodationType    `json:"accommodation_type,omitempty"`
	InCellSanitation    *bool                `json:"in_cell_sanitation,omitempty"`
	ConvertedCellType   string               `json:"converted_cell_type,omitempty"`
	CellMark            string               `json:"cell_mark,omitempty"`
	SubLocations        []LocationSnapshot   `json:"sub_locations,omitempty"`
}

// Clone returns a deep copy.
func (s LocationSnapshot) Clone() LocationSnapshot {
	out := s
	out.SpecialistCellTypes = slices.Clone(s.SpecialistCellTypes)
	out.UsedForTypes = slices.Clone(s.UsedForTypes)
	if s.InCellSanitation != nil {
		v := *s.InCellSanitation
		out.InCellSanitation = &v
	}
	if s.SubLocations != nil {
		out.SubLocations = make([]LocationSnapshot, len(s.SubLocations))
		for i, sub := range s.SubLocations {
			out.SubLocations[i] = sub.Clone()
		}
	}
	return out
}

// Count returns the number of nodes in the snapshot tree.
func (s LocationSnapshot) Count() int {
	n := 0
	stack := []LocationSnapshot{s}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n++
		stack = append(stack, top.SubLocations...)
	}
	return n
}

// Freeze builds the snapshot of rootID's subtree. Nodes rejected by include
// are skipped with their descendants; the root is always captured. Cells
// carry their effective capacity and every other node the sum of its
// captured children, so a snapshot's totals only reflect what it contains.
func Freeze(h *Hierarchy, rootID string, include func(Location) bool) (LocationSnapshot, bool) {
	ids := h.subtreeIDs(rootID)
	if len(ids) == 0 {
		return LocationSnapshot{}, false
	}
	captured := map[string]bool{rootID: true}
	order := []string{rootID}
	for _, id := range ids[1:] {
		node := h.nodes[id]
		if !captured[h.parentID(id)] {
			continue
		}
		if include != nil && !include(node) {
			continue
		}
		captured[id] = true
		order = append(order, id)
	}

	built := make(map[string]LocationSnapshot, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		node := h.nodes[id]
		snap := snapshotOf(node)
		if node.LocationType.IsCell() && !h.IsDeactivated(id) {
			snap.Capacity = node.StoredCapacity()
		}
		for _, child := range h.children[id] {
			sub, ok := built[child]
			if !ok {
				continue
			}
			snap.SubLocations = append(snap.SubLocations, sub)
			if !node.LocationType.IsCell() {
				snap.Capacity = snap.Capacity.Add(sub.Capacity)
			}
			delete(built, child)
		}
		built[id] = snap
	}
	return built[rootID], true
}

func snapshotOf(l Location) LocationSnapshot {
	s := LocationSnapshot{
		ID:                  l.ID,
		Code:                l.Code,
		PathHierarchy:       l.PathHierarchy,
		LocalName:           l.LocalName,
		LocationType:        l.LocationType,
		Status:              l.EffectiveStatus(),
		CertifiedCell:       l.CertifiedCell,
		SpecialistCellTypes: slices.Clone(l.SpecialistCellTypes),
		UsedForTypes:        slices.Clone(l.UsedForTypes),
		AccommodationType:   l.AccommodationType,
		ConvertedCellType:   l.ConvertedCellType,
		CellMark:            l.CellMark,
	}
	if l.InCellSanitation != nil {
		v := *l.InCellSanitation
		s.InCellSanitation = &v
	}
	return s
}

// CellCertificate is an approved point-in-time record of a prison's
// certifiable layout. Only Current changes after creation.
type CellCertificate struct {
	Base
	PrisonID                          string             `json:"prison_id"`
	ApprovedBy                        string             `json:"approved_by"`
	ApprovedDate                      time.Time          `json:"approved_date"`
	ApprovalRequestID                 string             `json:"approval_request_id"`
	TotalWorkingCapacity              int                `json:"total_working_capacity"`
	TotalMaxCapacity                  int                `json:"total_max_capacity"`
	TotalCertifiedNormalAccommodation int                `json:"total_certified_normal_accommodation"`
	SignedOperationCapacity           int                `json:"signed_operation_capacity"`
	Current                           bool               `json:"current"`
	Locations                         []LocationSnapshot `json:"locations"`
}

// Totals returns the certificate totals as a Capacity.
func (c CellCertificate) Totals() Capacity {
	return Capacity{
		MaxCapacity:                  c.TotalMaxCapacity,
		WorkingCapacity:              c.TotalWorkingCapacity,
		CertifiedNormalAccommodation: c.TotalCertifiedNormalAccommodation,
	}
}

// Clone returns a deep copy.
func (c CellCertificate) Clone() CellCertificate {
	out := c
	if c.Locations != nil {
		out.Locations = make([]LocationSnapshot, len(c.Locations))
		for i, l := range c.Locations {
			out.Locations[i] = l.Clone()
		}
	}
	return out
}

// SameContent reports whether two certificates differ at most in their
// Current flag and update time.
func (c CellCertificate) SameContent(other CellCertificate) bool {
	a, b := c, other
	a.Current, b.Current = false, false
	a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	return reflect.DeepEqual(a, b)
}

// SignedOperationCapacity is the approved prison-wide operational capacity.
type SignedOperationCapacity struct {
	Base
	PrisonID          string    `json:"prison_id"`
	Value             int       `json:"value"`
	ApprovedBy        string    `json:"approved_by"`
	ApprovedDate      time.Time `json:"approved_date"`
	ApprovalRequestID string    `json:"approval_request_id"`
}
