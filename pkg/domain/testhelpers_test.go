package domain

import "fmt"

func strPtr(s string) *string { return &s }

func node(id, prison, code string, typ LocationType, parent string) Location {
	loc := Location{Base: Base{ID: id}, PrisonID: prison, Code: code, LocationType: typ, Status: StatusActive}
	if parent != "" {
		loc.ParentID = strPtr(parent)
	}
	return loc
}

func cell(id, parent string, max, working, cna int) Location {
	loc := node(id, "MDI", id, LocationTypeCell, parent)
	loc.AccommodationType = AccommodationNormal
	loc.Capacity = &Capacity{MaxCapacity: max, WorkingCapacity: working, CertifiedNormalAccommodation: cna}
	return loc
}

// wingFixture builds A (wing) > 1 (landing) > c1, c2 and A > 2 > c3.
func wingFixture() *Hierarchy {
	locs := []Location{
		node("A", "MDI", "A", LocationTypeWing, ""),
		node("L1", "MDI", "1", LocationTypeLanding, "A"),
		node("L2", "MDI", "2", LocationTypeLanding, "A"),
		cell("c1", "L1", 2, 2, 2),
		cell("c2", "L1", 1, 1, 1),
		cell("c3", "L2", 3, 2, 3),
	}
	h := NewHierarchy(nil)
	for _, l := range locs {
		if _, err := h.Insert(l); err != nil {
			panic(fmt.Sprintf("insert %s: %v", l.ID, err))
		}
	}
	return h
}
