package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"locationcore/internal/approval"
	"locationcore/pkg/domain"
)

type createRequestBody struct {
	LocationID string                     `json:"location_id" validate:"required"`
	Kind       domain.ApprovalRequestKind `json:"kind" validate:"required,oneof=DRAFT DEACTIVATION REACTIVATION CELL_MARK CELL_SANITATION CAPACITY_CHANGE"`
	Payload    json.RawMessage            `json:"payload"`
	Comments   string                     `json:"comments" validate:"max=1000"`
}

type signedOperationCapacityBody struct {
	Value  *int   `json:"signed_operation_capacity" validate:"required,gte=0"`
	Reason string `json:"reason" validate:"required,max=1000"`
}

type resolveBody struct {
	Comments string `json:"comments" validate:"max=1000"`
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body createRequestBody
	if !h.decode(w, r, &body) {
		return
	}
	payload, err := domain.DecodeApprovalPayload(body.Kind, body.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+string(body.Kind)+" payload")
		return
	}
	req, err := h.Workflow.RequestApproval(r.Context(), actor, approval.RequestInput{
		LocationID: body.LocationID,
		Kind:       body.Kind,
		Payload:    payload,
		Comments:   body.Comments,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"approval_request": req})
}

func (h *Handler) requestSignedOperationCapacity(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body signedOperationCapacityBody
	if !h.decode(w, r, &body) {
		return
	}
	req, err := h.Workflow.RequestSignedOperationCapacityChange(r.Context(), actor, chi.URLParam(r, "prisonID"), *body.Value, body.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"approval_request": req})
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Workflow.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approval_request": req})
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	status := domain.ApprovalStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+string(status))
		return
	}
	reqs, err := h.Workflow.ListRequests(r.Context(), chi.URLParam(r, "prisonID"), status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approval_requests": reqs})
}

func (h *Handler) approveRequest(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.Workflow.Approve)
}

func (h *Handler) rejectRequest(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.Workflow.Reject)
}

func (h *Handler) withdrawRequest(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.Workflow.Withdraw)
}

type resolveFunc = func(ctx context.Context, actor domain.Actor, requestID, comments string) (approval.Outcome, error)

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, fn resolveFunc) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body resolveBody
	if !h.decode(w, r, &body) {
		return
	}
	out, err := fn(r.Context(), actor, chi.URLParam(r, "id"), body.Comments)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listCertificates(w http.ResponseWriter, r *http.Request) {
	certs, err := h.Certificates.List(r.Context(), chi.URLParam(r, "prisonID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"certificates": certs})
}

func (h *Handler) currentCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := h.Certificates.Current(r.Context(), chi.URLParam(r, "prisonID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"certificate": cert})
}

func (h *Handler) getCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := h.Certificates.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"certificate": cert})
}
