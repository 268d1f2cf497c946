package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"locationcore/internal/approval"
	"locationcore/internal/certificate"
	"locationcore/internal/core"
	"locationcore/internal/httpapi"
	"locationcore/internal/infra/persistence/memory"
	"locationcore/internal/ledger"
	"locationcore/internal/location"
	"locationcore/internal/metrics"
	"locationcore/internal/prisonconfig"
	"locationcore/pkg/domain"
)

type server struct {
	t       *testing.T
	handler http.Handler
}

func newServer(t *testing.T) *server {
	t.Helper()
	store := memory.NewStore(core.NewDefaultRulesEngine())
	registry := prisonconfig.New()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	locations := location.New(store, registry, location.WithMetrics(m))
	workflow := approval.New(store, registry, registry, approval.WithMetrics(m))
	clock := domain.ClockFunc(func() time.Time { return time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC) })
	h := httpapi.New(locations, workflow, certificate.NewService(store), ledger.NewService(store), httpapi.WithClock(clock))
	h.Gatherer = reg
	return &server{t: t, handler: h.Routes()}
}

func (s *server) do(method, path, user string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set(httpapi.UsernameHeader, user)
	}
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)
	return resp
}

func (s *server) expect(resp *httptest.ResponseRecorder, status int) map[string]json.RawMessage {
	s.t.Helper()
	if resp.Code != status {
		s.t.Fatalf("expected status %d, got %d: %s", status, resp.Code, resp.Body.String())
	}
	out := map[string]json.RawMessage{}
	if resp.Body.Len() > 0 {
		if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
			s.t.Fatalf("decode response: %v", err)
		}
	}
	return out
}

func field[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode field: %v", err)
	}
	return out
}

func (s *server) createLocation(body map[string]any) domain.Location {
	s.t.Helper()
	out := s.expect(s.do(http.MethodPost, "/api/v1/locations", "builder", body), http.StatusCreated)
	return field[domain.Location](s.t, out["location"])
}

func TestDraftWingApprovedThroughAPI(t *testing.T) {
	s := newServer(t)

	wing := s.createLocation(map[string]any{"prison_id": "MDI", "code": "A", "location_type": "WING"})
	if wing.Status != domain.StatusDraft {
		t.Fatalf("expected DRAFT wing, got %s", wing.Status)
	}
	landing := s.createLocation(map[string]any{"prison_id": "MDI", "code": "1", "location_type": "LANDING", "parent_id": wing.ID})
	cell := s.createLocation(map[string]any{
		"prison_id": "MDI", "code": "001", "location_type": "CELL", "parent_id": landing.ID,
		"accommodation_type": "NORMAL_ACCOMMODATION",
		"capacity":           map[string]int{"max_capacity": 2, "working_capacity": 1, "certified_normal_accommodation": 2},
	})
	if cell.PathHierarchy != "A-1-001" {
		t.Fatalf("unexpected cell path %s", cell.PathHierarchy)
	}

	out := s.expect(s.do(http.MethodPost, "/api/v1/approval-requests", "requester", map[string]any{
		"location_id": wing.ID, "kind": "DRAFT",
	}), http.StatusCreated)
	req := field[domain.ApprovalRequest](t, out["approval_request"])
	if req.Status != domain.ApprovalPending || req.Deltas.WorkingCapacityChange != 1 {
		t.Fatalf("unexpected request %+v", req)
	}

	out = s.expect(s.do(http.MethodPost, "/api/v1/approval-requests/"+req.ID+"/approve", "approver", map[string]string{"comments": "ok"}), http.StatusOK)
	cert := field[domain.CellCertificate](t, out["certificate"])
	if cert.TotalWorkingCapacity != 1 || cert.TotalMaxCapacity != 2 || !cert.Current {
		t.Fatalf("unexpected certificate %+v", cert)
	}

	out = s.expect(s.do(http.MethodGet, "/api/v1/prisons/MDI/certificates/current", "", nil), http.StatusOK)
	if current := field[domain.CellCertificate](t, out["certificate"]); current.ID != cert.ID {
		t.Fatalf("expected current certificate %s, got %s", cert.ID, current.ID)
	}

	out = s.expect(s.do(http.MethodPost, "/api/v1/approval-requests/"+req.ID+"/approve", "approver", nil), http.StatusUnprocessableEntity)
	if reason := field[string](t, out["reason"]); reason != string(domain.ReasonApprovalRequestNotInPendingStatus) {
		t.Fatalf("unexpected reason %s", reason)
	}

	out = s.expect(s.do(http.MethodPut, "/api/v1/locations/"+cell.ID+"/capacity", "builder", map[string]int{
		"max_capacity": 2, "working_capacity": 2, "certified_normal_accommodation": 2,
	}), http.StatusBadRequest)
	if reason := field[string](t, out["reason"]); reason != string(domain.ReasonLocationRequiresApproval) {
		t.Fatalf("unexpected reason %s", reason)
	}

	out = s.expect(s.do(http.MethodGet, "/api/v1/prisons/MDI/approval-requests?status=APPROVED", "", nil), http.StatusOK)
	if reqs := field[[]json.RawMessage](t, out["approval_requests"]); len(reqs) != 1 {
		t.Fatalf("expected one approved request, got %d", len(reqs))
	}
}

func TestMutationsRequireUsername(t *testing.T) {
	s := newServer(t)
	s.expect(s.do(http.MethodPost, "/api/v1/locations", "", map[string]any{"prison_id": "MDI", "code": "A", "location_type": "WING"}), http.StatusUnauthorized)
}

func TestValidationAndErrorMapping(t *testing.T) {
	s := newServer(t)

	out := s.expect(s.do(http.MethodPost, "/api/v1/locations", "builder", map[string]any{
		"prison_id": "MDI", "code": "001", "location_type": "CELL",
	}), http.StatusBadRequest)
	if fields := field[map[string]string](t, out["fields"]); fields["Capacity"] != "required_if" {
		t.Fatalf("expected capacity to be required, got %v", fields)
	}

	out = s.expect(s.do(http.MethodPost, "/api/v1/locations", "builder", map[string]any{
		"prison_id": "MDI", "code": "S", "location_type": "STORE",
	}), http.StatusBadRequest)
	if fields := field[map[string]string](t, out["fields"]); fields["LocationType"] != "oneof" {
		t.Fatalf("expected location type to be rejected, got %v", fields)
	}

	out = s.expect(s.do(http.MethodGet, "/api/v1/locations/missing", "", nil), http.StatusNotFound)
	if code := field[string](t, out["code"]); code != string(domain.CodeNotFound) {
		t.Fatalf("unexpected code %s", code)
	}

	s.createLocation(map[string]any{"prison_id": "MDI", "code": "A", "location_type": "WING"})
	out = s.expect(s.do(http.MethodPost, "/api/v1/locations", "builder", map[string]any{
		"prison_id": "MDI", "code": "A", "location_type": "WING",
	}), http.StatusConflict)
	if reason := field[string](t, out["reason"]); reason != string(domain.ReasonLocationKeyConflict) {
		t.Fatalf("unexpected reason %s", reason)
	}

	s.expect(s.do(http.MethodPost, "/api/v1/prisons/MDI/signed-operation-capacity", "requester", map[string]any{"reason": "x"}), http.StatusBadRequest)
	s.expect(s.do(http.MethodGet, "/api/v1/prisons/MDI/approval-requests?status=DONE", "", nil), http.StatusBadRequest)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/locations/x/code", strings.NewReader(`{"code":`))
	req.Header.Set(httpapi.UsernameHeader, "builder")
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)
	s.expect(resp, http.StatusBadRequest)
}

func TestSignedOperationCapacityRequest(t *testing.T) {
	s := newServer(t)
	out := s.expect(s.do(http.MethodPost, "/api/v1/prisons/MDI/signed-operation-capacity", "requester", map[string]any{
		"signed_operation_capacity": 40, "reason": "new wing",
	}), http.StatusCreated)
	req := field[domain.ApprovalRequest](t, out["approval_request"])
	if req.Kind != domain.KindSignedOperationCapacity || req.Deltas.SignedOperationCapacityChange != 40 {
		t.Fatalf("unexpected request %+v", req)
	}
	s.expect(s.do(http.MethodPost, "/api/v1/approval-requests/"+req.ID+"/withdraw", "requester", nil), http.StatusOK)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t)
	s.expect(s.do(http.MethodGet, "/healthz", "", nil), http.StatusOK)
	s.createLocation(map[string]any{"prison_id": "MDI", "code": "A", "location_type": "WING"})

	resp := s.do(http.MethodGet, "/metrics", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics status %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `locationcore_location_mutations_total{operation="create"} 1`) {
		t.Fatalf("mutation counter missing from metrics output")
	}
}
