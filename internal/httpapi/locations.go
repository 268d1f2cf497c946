package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"locationcore/internal/location"
	"locationcore/pkg/domain"
)

type capacityBody struct {
	MaxCapacity                  int `json:"max_capacity" validate:"gte=0,lte=99"`
	WorkingCapacity              int `json:"working_capacity" validate:"gte=0,lte=99,ltefield=MaxCapacity"`
	CertifiedNormalAccommodation int `json:"certified_normal_accommodation" validate:"gte=0,lte=99"`
}

func (c capacityBody) toCapacity() domain.Capacity {
	return domain.Capacity{
		MaxCapacity:                  c.MaxCapacity,
		WorkingCapacity:              c.WorkingCapacity,
		CertifiedNormalAccommodation: c.CertifiedNormalAccommodation,
	}
}

type createLocationRequest struct {
	PrisonID            string                      `json:"prison_id" validate:"required,alphanum,max=5"`
	Code                string                      `json:"code" validate:"required,max=12"`
	LocationType        domain.LocationType         `json:"location_type" validate:"required,oneof=WING SPUR LANDING CELL"`
	ParentID            string                      `json:"parent_id"`
	LocalName           string                      `json:"local_name" validate:"max=80"`
	Capacity            *capacityBody               `json:"capacity" validate:"required_if=LocationType CELL"`
	AccommodationType   domain.AccommodationType    `json:"accommodation_type"`
	SpecialistCellTypes []domain.SpecialistCellType `json:"specialist_cell_types"`
	UsedForTypes        []domain.UsedForType        `json:"used_for_types"`
	InCellSanitation    *bool                       `json:"in_cell_sanitation"`
	CellMark            string                      `json:"cell_mark"`
}

type renameRequest struct {
	Code string `json:"code" validate:"required,max=12"`
}

type moveRequest struct {
	ParentID string `json:"parent_id" validate:"required"`
}

type deactivateRequest struct {
	Reason                   domain.DeactivatedReason `json:"reason" validate:"required"`
	Description              string                   `json:"description"`
	ProposedReactivationDate *time.Time               `json:"proposed_reactivation_date"`
	Permanent                bool                     `json:"permanent"`
}

func (h *Handler) createLocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req createLocationRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := location.CreateInput{
		PrisonID:            req.PrisonID,
		Code:                req.Code,
		LocationType:        req.LocationType,
		ParentID:            req.ParentID,
		LocalName:           req.LocalName,
		AccommodationType:   req.AccommodationType,
		SpecialistCellTypes: req.SpecialistCellTypes,
		UsedForTypes:        req.UsedForTypes,
		InCellSanitation:    req.InCellSanitation,
		CellMark:            req.CellMark,
	}
	if req.Capacity != nil {
		c := req.Capacity.toCapacity()
		in.Capacity = &c
	}
	loc, err := h.Locations.Create(r.Context(), actor, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"location": loc})
}

func (h *Handler) getLocation(w http.ResponseWriter, r *http.Request) {
	view, err := h.Locations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"location": view})
}

func (h *Handler) renameLocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req renameRequest
	if !h.decode(w, r, &req) {
		return
	}
	loc, err := h.Locations.Rename(r.Context(), actor, chi.URLParam(r, "id"), req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"location": loc})
}

func (h *Handler) moveLocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !h.decode(w, r, &req) {
		return
	}
	moved, err := h.Locations.AddChild(r.Context(), actor, req.ParentID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": moved})
}

func (h *Handler) updateCapacity(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req capacityBody
	if !h.decode(w, r, &req) {
		return
	}
	loc, err := h.Locations.UpdateCapacity(r.Context(), actor, chi.URLParam(r, "id"), req.toCapacity())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"location": loc})
}

func (h *Handler) deactivateLocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req deactivateRequest
	if !h.decode(w, r, &req) {
		return
	}
	changed, err := h.Locations.Deactivate(r.Context(), actor, chi.URLParam(r, "id"), location.DeactivateInput{
		Reason:                   req.Reason,
		Description:              req.Description,
		ProposedReactivationDate: req.ProposedReactivationDate,
		Permanent:                req.Permanent,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": changed})
}

func (h *Handler) reactivateLocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	changed, err := h.Locations.Reactivate(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": changed})
}

func (h *Handler) deleteDraft(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.Locations.DeleteDraft(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) locationHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Ledger.LocationHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": rows})
}

func (h *Handler) prisonSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Locations.Summary(r.Context(), chi.URLParam(r, "prisonID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Ledger.Transactions(r.Context(), chi.URLParam(r, "prisonID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (h *Handler) transactionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.Ledger.TransactionHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
