// Package location is the direct editing surface for residential
// locations: creation, re-parenting and renaming of drafts, and the
// capacity and status edits allowed without certification approval.
package location

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"locationcore/internal/events"
	"locationcore/internal/ledger"
	"locationcore/internal/metrics"
	"locationcore/pkg/domain"
)

// PrisonConfig reports whether a prison's location changes need approval.
type PrisonConfig interface {
	IsCertificationApprovalRequired(ctx context.Context, prisonID string) (bool, error)
}

// Service edits locations inside store transactions, writing a ledger
// transaction for every mutation.
type Service struct {
	store   domain.PersistentStore
	prisons PrisonConfig
	policy  domain.DeactivationPolicy
	logger  *slog.Logger
	metrics *metrics.Metrics
	events  events.Publisher
	audit   events.AuditSink
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithEvents(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

func WithAudit(a events.AuditSink) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

func WithDeactivationPolicy(p domain.DeactivationPolicy) Option {
	return func(s *Service) { s.policy = domain.ParseDeactivationPolicy(string(p)) }
}

func New(store domain.PersistentStore, prisons PrisonConfig, opts ...Option) *Service {
	s := &Service{
		store:   store,
		prisons: prisons,
		policy:  domain.DeactivationPreserveWorkingCapacity,
		logger:  slog.Default(),
		events:  events.Discard{},
		audit:   events.Discard{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// View is a location with its derived capacity.
type View struct {
	domain.Location
	Key               string          `json:"key"`
	EffectiveCapacity domain.Capacity `json:"effective_capacity"`
	Deactivated       bool            `json:"deactivated"`
}

// Summary is a prison's layout with rolled-up capacity.
type Summary struct {
	PrisonID                string                    `json:"prison_id"`
	Totals                  domain.Capacity           `json:"totals"`
	SignedOperationCapacity int                       `json:"signed_operation_capacity"`
	PendingApprovals        int                       `json:"pending_approvals"`
	Locations               []domain.LocationSnapshot `json:"locations"`
}

// Get returns a location with its effective capacity.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	var out View
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		loc, ok := view.FindLocation(id)
		if !ok {
			return domain.NotFound(domain.ReasonLocationNotFound, "location %s not found", id)
		}
		h := domain.NewHierarchy(view.ListLocations(loc.PrisonID))
		out = View{
			Location:          loc,
			Key:               loc.Key(),
			EffectiveCapacity: h.EffectiveCapacity(id),
			Deactivated:       h.IsDeactivated(id),
		}
		return nil
	})
	return out, err
}

// Summary returns every location of the prison as a tree.
func (s *Service) Summary(ctx context.Context, prisonID string) (Summary, error) {
	out := Summary{PrisonID: prisonID, Locations: []domain.LocationSnapshot{}}
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		h := domain.NewHierarchy(view.ListLocations(prisonID))
		for _, root := range h.Roots() {
			snap, ok := domain.Freeze(h, root.ID, nil)
			if !ok {
				continue
			}
			out.Locations = append(out.Locations, snap)
			out.Totals = out.Totals.Add(h.EffectiveCapacity(root.ID))
		}
		if soc, ok := view.FindSignedOperationCapacity(prisonID); ok {
			out.SignedOperationCapacity = soc.Value
		}
		for _, req := range view.ListApprovalRequests(prisonID) {
			if req.IsPending() {
				out.PendingApprovals++
			}
		}
		return nil
	})
	return out, err
}

// target loads a location and reports whether its prison requires
// certification approval.
func (s *Service) target(ctx context.Context, id string) (domain.Location, bool, error) {
	var loc domain.Location
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		var ok bool
		if loc, ok = view.FindLocation(id); !ok {
			return domain.NotFound(domain.ReasonLocationNotFound, "location %s not found", id)
		}
		return nil
	})
	if err != nil {
		return domain.Location{}, false, err
	}
	required, err := s.prisons.IsCertificationApprovalRequired(ctx, loc.PrisonID)
	if err != nil {
		return domain.Location{}, false, err
	}
	return loc, required, nil
}

// mutate runs fn in a store transaction wrapped by a ledger transaction,
// then publishes the event and audit records.
func (s *Service) mutate(ctx context.Context, actor domain.Actor, op string, prisonID string, txType domain.TransactionType, detail string,
	evtType events.Type, fn func(tx domain.Transaction, rec *ledger.Recorder) error) (err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("location_"+op, started, err) }()

	var txID string
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		rec, err := ledger.Begin(tx, prisonID, txType, detail, actor)
		if err != nil {
			return err
		}
		if err := fn(tx, rec); err != nil {
			return err
		}
		linked, err := rec.Close()
		txID = linked.ID
		return err
	})
	if err != nil {
		return err
	}

	s.metrics.IncMutation(op)
	s.logger.InfoContext(ctx, "location_"+op,
		"event", "location_"+op,
		"log_type", "audit",
		"prison_id", prisonID,
		"transaction_id", txID,
		"actor", actor.Username,
	)
	evt := events.NewEvent(evtType, prisonID, actor)
	evt.TransactionID = txID
	for _, c := range res.Changes {
		if c.Entity == domain.EntityLocation {
			evt.LocationIDs = append(evt.LocationIDs, c.EntityID)
		}
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.metrics.IncPostCommitFailure("events")
		s.logger.ErrorContext(ctx, "publish event failed", "operation", op, "error", err)
	}
	if records := events.AuditFromChanges(res.Changes, op, txID, actor); len(records) > 0 {
		if err := s.audit.Record(ctx, records...); err != nil {
			s.metrics.IncPostCommitFailure("audit")
			s.logger.ErrorContext(ctx, "record audit failed", "operation", op, "error", err)
		}
	}
	return nil
}

// persist writes every node of h that differs from before and records the
// difference in the ledger.
func persist(tx domain.Transaction, rec *ledger.Recorder, before []domain.Location, h *domain.Hierarchy) error {
	for _, old := range before {
		next, ok := h.Node(old.ID)
		if !ok {
			continue
		}
		if reflect.DeepEqual(old, next) {
			continue
		}
		after, err := tx.UpdateLocation(old.ID, func(l *domain.Location) error {
			*l = next
			return nil
		})
		if err != nil {
			return err
		}
		if err := rec.Diff(old, after); err != nil {
			return err
		}
	}
	return nil
}
