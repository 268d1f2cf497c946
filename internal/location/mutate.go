package location

import (
	"context"
	"fmt"
	"slices"
	"time"

	"locationcore/internal/events"
	"locationcore/internal/ledger"
	"locationcore/pkg/domain"
)

// CreateInput describes a new location. Capacity and the cell attributes
// apply to cells only.
type CreateInput struct {
	PrisonID            string
	Code                string
	LocationType        domain.LocationType
	ParentID            string
	LocalName           string
	Capacity            *domain.Capacity
	AccommodationType   domain.AccommodationType
	SpecialistCellTypes []domain.SpecialistCellType
	UsedForTypes        []domain.UsedForType
	InCellSanitation    *bool
	CellMark            string
}

// DeactivateInput describes a direct deactivation.
type DeactivateInput struct {
	Reason                   domain.DeactivatedReason
	Description              string
	ProposedReactivationDate *time.Time
	Permanent                bool
}

// Create adds a location. It starts as DRAFT when the prison requires
// certification approval and ACTIVE otherwise.
func (s *Service) Create(ctx context.Context, actor domain.Actor, in CreateInput) (domain.Location, error) {
	if in.PrisonID == "" || in.Code == "" {
		return domain.Location{}, domain.Validation(domain.ReasonInvalidRequest, "prison id and code are required")
	}
	if !in.LocationType.IsResidential() {
		return domain.Location{}, domain.Validation(domain.ReasonInvalidRequest, "location type %q is not residential", in.LocationType)
	}
	required, err := s.prisons.IsCertificationApprovalRequired(ctx, in.PrisonID)
	if err != nil {
		return domain.Location{}, err
	}
	loc := domain.Location{
		Base:                domain.Base{ID: domain.NewID()},
		PrisonID:            in.PrisonID,
		Code:                in.Code,
		LocalName:           in.LocalName,
		LocationType:        in.LocationType,
		Status:              domain.StatusActive,
		AccommodationType:   in.AccommodationType,
		SpecialistCellTypes: in.SpecialistCellTypes,
		UsedForTypes:        in.UsedForTypes,
		InCellSanitation:    in.InCellSanitation,
		CellMark:            in.CellMark,
	}
	if required {
		loc.Status = domain.StatusDraft
	}
	if in.ParentID != "" {
		parent := in.ParentID
		loc.ParentID = &parent
	}
	switch {
	case in.LocationType.IsCell() && in.Capacity == nil:
		return domain.Location{}, domain.Validation(domain.ReasonCapacityInvalid, "cell %s requires a capacity", in.Code)
	case in.LocationType.IsCell():
		if err := domain.ValidateCapacity(in.AccommodationType, in.SpecialistCellTypes, *in.Capacity); err != nil {
			return domain.Location{}, err
		}
		c := *in.Capacity
		loc.Capacity = &c
	case in.Capacity != nil:
		return domain.Location{}, domain.Validation(domain.ReasonCapacityInvalid, "%s %s cannot store capacity", in.LocationType, in.Code)
	}

	var created domain.Location
	err = s.mutate(ctx, actor, "create", in.PrisonID, domain.TransactionLocationCreate,
		fmt.Sprintf("create %s %s", in.LocationType, in.Code), events.LocationCreated,
		func(tx domain.Transaction, rec *ledger.Recorder) error {
			view := tx.Snapshot()
			h := domain.NewHierarchy(view.ListLocations(in.PrisonID))
			if in.ParentID != "" {
				parent, ok := h.Node(in.ParentID)
				switch {
				case !ok:
					return domain.NotFound(domain.ReasonLocationNotFound, "parent location %s not found", in.ParentID)
				case parent.LocationType.IsCell():
					return domain.Validation(domain.ReasonInvalidHierarchy, "cell %s cannot contain locations", parent.Key())
				case parent.IsLocked():
					return domain.Conflict(domain.ReasonLocationLocked, "location %s is locked by approval request %s", parent.Key(), parent.PendingApprovalRequestID)
				}
			}
			inserted, err := h.Insert(loc)
			if err != nil {
				return err
			}
			if _, taken := view.FindLocationByKey(inserted.Key()); taken {
				return domain.Conflict(domain.ReasonLocationKeyConflict, "location %s already exists", inserted.Key())
			}
			if created, err = tx.CreateLocation(inserted); err != nil {
				return err
			}
			return rec.Created(created)
		})
	return created, err
}

// AddChild moves childID under parentID. With certification approval
// required only DRAFT subtrees can move.
func (s *Service) AddChild(ctx context.Context, actor domain.Actor, parentID, childID string) ([]domain.Location, error) {
	child, required, err := s.target(ctx, childID)
	if err != nil {
		return nil, err
	}
	var moved []domain.Location
	err = s.mutate(ctx, actor, "move", child.PrisonID, domain.TransactionLocationUpdate,
		fmt.Sprintf("move %s under %s", child.Key(), parentID), events.LocationAmended,
		func(tx domain.Transaction, rec *ledger.Recorder) error {
			h := domain.NewHierarchy(tx.Snapshot().ListLocations(child.PrisonID))
			parent, ok := h.Node(parentID)
			if !ok {
				return domain.NotFound(domain.ReasonLocationNotFound, "parent location %s not found", parentID)
			}
			if parent.LocationType.IsCell() {
				return domain.Validation(domain.ReasonInvalidHierarchy, "cell %s cannot contain locations", parent.Key())
			}
			before, err := subtree(h, childID)
			if err != nil {
				return err
			}
			if err := unlocked(append(slices.Clone(before), parent)); err != nil {
				return err
			}
			if required {
				if err := allDraft(before); err != nil {
					return err
				}
			}
			if _, err := h.AddChild(parentID, childID); err != nil {
				return err
			}
			if err := persist(tx, rec, before, h); err != nil {
				return err
			}
			moved = h.Subtree(childID)
			return nil
		})
	return moved, err
}

// Rename changes the code of a location and cascades its path. Prisons that
// require certification only rename DRAFT locations.
func (s *Service) Rename(ctx context.Context, actor domain.Actor, id, code string) (domain.Location, error) {
	loc, required, err := s.target(ctx, id)
	if err != nil {
		return domain.Location{}, err
	}
	var renamed domain.Location
	err = s.mutate(ctx, actor, "rename", loc.PrisonID, domain.TransactionLocationUpdate,
		fmt.Sprintf("rename %s to %s", loc.Key(), code), events.LocationAmended,
		func(tx domain.Transaction, rec *ledger.Recorder) error {
			view := tx.Snapshot()
			h := domain.NewHierarchy(view.ListLocations(loc.PrisonID))
			before, err := subtree(h, id)
			if err != nil {
				return err
			}
			if err := unlocked(before); err != nil {
				return err
			}
			switch current := before[0]; {
			case current.IsPermanentlyDeactivated():
				return domain.Conflict(domain.ReasonLocationAlreadyDeactivated, "location %s is permanently deactivated", current.Key())
			case required && current.Status != domain.StatusDraft:
				return domain.Validation(domain.ReasonLocationNotDraft, "location %s is %s; only DRAFT locations can be renamed", current.Key(), current.Status)
			}
			changed, err := h.Rename(id, code)
			if err != nil {
				return err
			}
			for _, c := range changed {
				if other, taken := view.FindLocationByKey(c.Key()); taken && other.ID != c.ID {
					return domain.Conflict(domain.ReasonLocationKeyConflict, "location %s already exists", c.Key())
				}
			}
			if err := persist(tx, rec, before, h); err != nil {
				return err
			}
			renamed, _ = h.Node(id)
			return nil
		})
	return renamed, err
}

// UpdateCapacity sets a cell's capacity directly. Certified cells of a
// prison that requires approval go through the approval workflow instead.
func (s *Service) UpdateCapacity(ctx context.Context, actor domain.Actor, id string, c domain.Capacity) (domain.Location, error) {
	loc, required, err := s.target(ctx, id)
	if err != nil {
		return domain.Location{}, err
	}
	switch {
	case !loc.LocationType.IsCell():
		return domain.Location{}, domain.Validation(domain.ReasonInvalidRequest, "%s %s does not store capacity", loc.LocationType, loc.Key())
	case required && !loc.IsDraft():
		return domain.Location{}, domain.Validation(domain.ReasonLocationRequiresApproval,
			"capacity of %s must be changed through a %s approval request", loc.Key(), domain.KindCapacityChange)
	}
	if err := domain.ValidateCapacity(loc.AccommodationType, loc.SpecialistCellTypes, c); err != nil {
		return domain.Location{}, err
	}
	var updated domain.Location
	err = s.mutate(ctx, actor, "capacity", loc.PrisonID, domain.TransactionCapacityChange,
		fmt.Sprintf("capacity of %s set to %d/%d/%d", loc.Key(), c.MaxCapacity, c.WorkingCapacity, c.CertifiedNormalAccommodation),
		events.LocationAmended,
		func(tx domain.Transaction, rec *ledger.Recorder) error {
			current, ok := tx.Snapshot().FindLocation(id)
			if !ok {
				return domain.NotFound(domain.ReasonLocationNotFound, "location %s not found", id)
			}
			if err := unlocked([]domain.Location{current}); err != nil {
				return err
			}
			if updated, err = tx.UpdateLocation(id, func(l *domain.Location) error {
				next := c
				l.Capacity = &next
				return nil
			}); err != nil {
				return err
			}
			return rec.Diff(current, updated)
		})
	return updated, err
}

// Deactivate takes a location and its descendants out of use in a prison
// that does not require certification approval.
func (s *Service) Deactivate(ctx context.Context, actor domain.Actor, id string, in DeactivateInput) ([]domain.Location, error) {
	loc, required, err := s.target(ctx, id)
	if err != nil {
		return nil, err
	}
	if required {
		return nil, domain.Validation(domain.ReasonLocationRequiresApproval, "%s must be deactivated through a %s approval request", loc.Key(), domain.KindDeactivation)
	}
	if in.Reason == "" {
		return nil, domain.Validation(domain.ReasonInvalidRequest, "deactivation reason is required")
	}
	var changed []domain.Location
	err = s.mutate(ctx, actor, "deactivate", loc.PrisonID, domain.TransactionDeactivate,
		fmt.Sprintf("deactivate %s (%s)", loc.Key(), in.Reason), events.LocationAmended,
		func(tx domain.Transaction, rec *ledger.Recorder) error {
			h := domain.NewHierarchy(tx.Snapshot().ListLocations(loc.PrisonID))
			before, err := subtree(h, id)
			if err != nil {
				return err
			}
			if err := unlocked(before); err != nil {
				return err
			}
			current := before[0]
			if current.IsPermanentlyDeactivated() || (h.IsDeactivated(id) && !in.Permanent) {
				return domain.Conflict(domain.ReasonLocationAlreadyDeactivated, "location %s is already deactivated", current.Key())
			}
			changed = h.DeactivateSubtree(id, domain.Deactivation{
				Reason:                   in.Reason,
				Description:              in.Description,
				ProposedReactivationDate: in.ProposedReactivationDate,
				Permanent:                in.Permanent,
			}, actor.Now(), s.policy)
			return persist(tx, rec, before, h)
		})
	return changed, err
}

// Reactivate returns an INACTIVE location and its INACTIVE descendants to
// ACTIVE in a prison that does not require certification approval.
func (s *Service) Reactivate(ctx context.Context, actor domain.Actor, id string) ([]domain.Location, error) {
	loc, required, err := s.target(ctx, id)
	if err != nil {
		return nil, err
	}
	if required {
		return nil, domain.Validation(domain.ReasonLocationRequiresApproval, "%s must be reactivated through a %s approval request", loc.Key(), domain.KindReactivation)
	}
	var changed []domain.Location
	err = s.mutate(ctx, actor, "reactivate", loc.PrisonID, domain.TransactionReactivate,
		fmt.Sprintf("reactivate %s", loc.Key()), events.LocationAmended,
		func(tx domain.Transaction, rec *ledger.Recorder) error {
			h := domain.NewHierarchy(tx.Snapshot().ListLocations(loc.PrisonID))
			before, err := subtree(h, id)
			if err != nil {
				return err
			}
			if err := unlocked(before); err != nil {
				return err
			}
			current := before[0]
			switch {
			case current.IsPermanentlyDeactivated():
				return domain.Conflict(domain.ReasonLocationAlreadyDeactivated, "location %s is permanently deactivated", current.Key())
			case !current.IsDeactivated():
				return domain.Conflict(domain.ReasonLocationNotDeactivated, "location %s is not deactivated", current.Key())
			}
			if parent, ok := h.Parent(id); ok && h.IsDeactivated(parent.ID) {
				return domain.Validation(domain.ReasonInvalidHierarchy, "parent %s of %s is deactivated", parent.Key(), current.Key())
			}
			changed = h.ReactivateSubtree(id)
			return persist(tx, rec, before, h)
		})
	return changed, err
}

// DeleteDraft removes a DRAFT location and its DRAFT descendants, deepest
// first. The history rows of the deleted nodes remain in the ledger.
func (s *Service) DeleteDraft(ctx context.Context, actor domain.Actor, id string) error {
	loc, _, err := s.target(ctx, id)
	if err != nil {
		return err
	}
	return s.mutate(ctx, actor, "delete", loc.PrisonID, domain.TransactionLocationDelete,
		fmt.Sprintf("delete draft %s", loc.Key()), events.LocationDeleted,
		func(tx domain.Transaction, rec *ledger.Recorder) error {
			h := domain.NewHierarchy(tx.Snapshot().ListLocations(loc.PrisonID))
			nodes, err := subtree(h, id)
			if err != nil {
				return err
			}
			if err := unlocked(nodes); err != nil {
				return err
			}
			if err := allDraft(nodes); err != nil {
				return err
			}
			for _, node := range slices.Backward(nodes) {
				if err := tx.DeleteLocation(node.ID); err != nil {
					return err
				}
				if err := rec.Diff(node, domain.Location{}); err != nil {
					return err
				}
			}
			return nil
		})
}

func subtree(h *domain.Hierarchy, id string) ([]domain.Location, error) {
	nodes := h.Subtree(id)
	if len(nodes) == 0 {
		return nil, domain.NotFound(domain.ReasonLocationNotFound, "location %s not found", id)
	}
	return nodes, nil
}

func unlocked(locations []domain.Location) error {
	for _, l := range locations {
		if l.IsLocked() {
			return domain.Conflict(domain.ReasonLocationLocked, "location %s is locked by approval request %s", l.Key(), l.PendingApprovalRequestID)
		}
	}
	return nil
}

func allDraft(locations []domain.Location) error {
	for _, l := range locations {
		if l.Status != domain.StatusDraft {
			return domain.Validation(domain.ReasonLocationNotDraft, "location %s is %s; only DRAFT locations can be changed directly", l.Key(), l.Status)
		}
	}
	return nil
}
