// Package httpapi exposes the location, approval, certificate and ledger
// services over JSON/HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"locationcore/internal/approval"
	"locationcore/internal/certificate"
	"locationcore/internal/ledger"
	"locationcore/internal/location"
	"locationcore/pkg/domain"
)

// UsernameHeader carries the acting user on mutating requests.
const UsernameHeader = "X-Username"

// Handler routes API requests to the services.
type Handler struct {
	Locations    *location.Service
	Workflow     *approval.Workflow
	Certificates *certificate.Service
	Ledger       *ledger.Service
	Gatherer     prometheus.Gatherer

	logger   *slog.Logger
	validate *validator.Validate
	clock    domain.Clock
	timeout  time.Duration
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithClock(clock domain.Clock) Option {
	return func(h *Handler) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithTimeout bounds every request; zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

func New(locations *location.Service, workflow *approval.Workflow, certificates *certificate.Service, ledgerSvc *ledger.Service, opts ...Option) *Handler {
	h := &Handler{
		Locations:    locations,
		Workflow:     workflow,
		Certificates: certificates,
		Ledger:       ledgerSvc,
		logger:       slog.Default(),
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		clock:        domain.SystemClock(),
		timeout:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes builds the chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)
	if h.timeout > 0 {
		r.Use(middleware.Timeout(h.timeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/locations", h.createLocation)
		r.Route("/locations/{id}", func(r chi.Router) {
			r.Get("/", h.getLocation)
			r.Delete("/", h.deleteDraft)
			r.Put("/code", h.renameLocation)
			r.Put("/parent", h.moveLocation)
			r.Put("/capacity", h.updateCapacity)
			r.Post("/deactivate", h.deactivateLocation)
			r.Post("/reactivate", h.reactivateLocation)
			r.Get("/history", h.locationHistory)
		})
		r.Route("/prisons/{prisonID}", func(r chi.Router) {
			r.Get("/summary", h.prisonSummary)
			r.Get("/certificates", h.listCertificates)
			r.Get("/certificates/current", h.currentCertificate)
			r.Get("/approval-requests", h.listRequests)
			r.Post("/signed-operation-capacity", h.requestSignedOperationCapacity)
			r.Get("/transactions", h.listTransactions)
		})
		r.Get("/certificates/{id}", h.getCertificate)
		r.Post("/approval-requests", h.createRequest)
		r.Route("/approval-requests/{id}", func(r chi.Router) {
			r.Get("/", h.getRequest)
			r.Post("/approve", h.approveRequest)
			r.Post("/reject", h.rejectRequest)
			r.Post("/withdraw", h.withdrawRequest)
		})
		r.Get("/transactions/{id}", h.transactionHistory)
	})
	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.InfoContext(r.Context(), "http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// actor resolves the acting user from the username header.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	username := r.Header.Get(UsernameHeader)
	if username == "" {
		writeError(w, http.StatusUnauthorized, "missing "+UsernameHeader+" header")
		return domain.Actor{}, false
	}
	return domain.NewActor(username, h.clock), true
}

// decode reads a JSON body into dst and validates its tags. An empty body
// leaves dst at its zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			fields := make(map[string]string, len(invalid))
			for _, fe := range invalid {
				fields[fe.Field()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request", "fields": fields})
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// fail maps a service error to its HTTP status.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	status := statusFor(derr.Code)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{
		"error":  derr.Message,
		"code":   string(derr.Code),
		"reason": string(derr.Reason),
	})
}

func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeIllegalStateTransition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
