package core

import (
	"context"
	"fmt"

	"locationcore/pkg/domain"
)

// LocationIntegrityRule checks the key, path and capacity invariants of
// every prison touched by a transaction.
func LocationIntegrityRule() domain.Rule {
	return locationIntegrityRule{}
}

type locationIntegrityRule struct{}

func (locationIntegrityRule) Name() string { return "location_integrity" }

func (r locationIntegrityRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	changed := changedLocationIDs(changes)
	if len(changed) == 0 {
		return res, nil
	}
	for _, prisonID := range domain.TouchedPrisons(changes) {
		locations := view.ListLocations(prisonID)
		byID := make(map[string]domain.Location, len(locations))
		for _, loc := range locations {
			byID[loc.ID] = loc
		}
		keys := make(map[string]string, len(locations))
		for _, loc := range locations {
			if other, dup := keys[loc.Key()]; dup {
				res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeConflict, domain.ReasonLocationKeyConflict,
					domain.EntityLocation, loc.ID, fmt.Sprintf("location key %s is used by %s and %s", loc.Key(), other, loc.ID)))
			}
			keys[loc.Key()] = loc.ID

			parentPath := ""
			if loc.ParentID != nil {
				parent, ok := byID[*loc.ParentID]
				switch {
				case !ok:
					res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeValidation, domain.ReasonInvalidHierarchy,
						domain.EntityLocation, loc.ID, fmt.Sprintf("location %s references missing parent %s", loc.Key(), *loc.ParentID)))
					continue
				case parent.LocationType.IsCell():
					res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeValidation, domain.ReasonInvalidHierarchy,
						domain.EntityLocation, loc.ID, fmt.Sprintf("cell %s cannot contain %s", parent.Key(), loc.Key())))
				}
				parentPath = parent.PathHierarchy
			}
			if want := domain.BuildPath(parentPath, loc.Code); loc.PathHierarchy != want {
				res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeValidation, domain.ReasonInvalidHierarchy,
					domain.EntityLocation, loc.ID, fmt.Sprintf("location %s has path %s, expected %s", loc.ID, loc.PathHierarchy, want)))
			}
			if changed[loc.ID] {
				if err := domain.ValidateLocationCapacity(loc); err != nil {
					res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeValidation, domain.ReasonCapacityInvalid,
						domain.EntityLocation, loc.ID, err.Error()))
				}
			}
		}
	}
	return res, nil
}

func changedLocationIDs(changes []domain.Change) map[string]bool {
	out := make(map[string]bool)
	for _, c := range changes {
		if c.Entity == domain.EntityLocation && c.Action != domain.ActionDelete {
			out[c.EntityID] = true
		}
	}
	return out
}
