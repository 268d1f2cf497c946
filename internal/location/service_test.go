package location

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"locationcore/internal/core"
	"locationcore/internal/events"
	"locationcore/internal/infra/persistence/memory"
	"locationcore/internal/ledger"
	"locationcore/internal/metrics"
	"locationcore/internal/prisonconfig"
	"locationcore/pkg/domain"
)

var now = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func officer() domain.Actor {
	return domain.NewActor("officer", domain.ClockFunc(func() time.Time { return now }))
}

type fixture struct {
	store   *memory.Store
	svc     *Service
	sink    *events.MemorySink
	ledger  *ledger.Service
	metrics *metrics.Metrics
}

// newFixture configures MDI to require certification approval and LEI not to.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	off := false
	registry := prisonconfig.New()
	registry.Set("LEI", prisonconfig.PrisonYAML{CertificationApprovalRequired: &off})
	f := &fixture{
		store:   memory.NewStore(core.NewDefaultRulesEngine()),
		sink:    events.NewMemorySink(),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.ledger = ledger.NewService(f.store)
	f.svc = New(f.store, registry, WithEvents(f.sink), WithAudit(f.sink), WithMetrics(f.metrics))
	return f
}

func (f *fixture) create(t *testing.T, prison, parentID, code string, typ domain.LocationType, c *domain.Capacity) domain.Location {
	t.Helper()
	in := CreateInput{PrisonID: prison, ParentID: parentID, Code: code, LocationType: typ, Capacity: c}
	if typ.IsCell() {
		in.AccommodationType = domain.AccommodationNormal
	}
	loc, err := f.svc.Create(context.Background(), officer(), in)
	require.NoError(t, err)
	return loc
}

// wing creates wing > landing 1 > cell 001 and returns the three ids.
func (f *fixture) wing(t *testing.T, prison, code string) (string, string, string) {
	t.Helper()
	w := f.create(t, prison, "", code, domain.LocationTypeWing, nil)
	l := f.create(t, prison, w.ID, "1", domain.LocationTypeLanding, nil)
	c := f.create(t, prison, l.ID, "001", domain.LocationTypeCell, &domain.Capacity{MaxCapacity: 2, WorkingCapacity: 2, CertifiedNormalAccommodation: 2})
	return w.ID, l.ID, c.ID
}

// force changes a location outside the service, bypassing the ledger.
func (f *fixture) force(t *testing.T, id string, mutate func(*domain.Location)) {
	t.Helper()
	_, err := f.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateLocation(id, func(l *domain.Location) error {
			mutate(l)
			return nil
		})
		return err
	})
	require.NoError(t, err)
}

// hold locks the subtree of id under a new pending request, as the
// approval workflow would, and returns a func that withdraws it.
func (f *fixture) hold(t *testing.T, id string) func() {
	t.Helper()
	var requestID string
	_, err := f.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		loc, _ := tx.Snapshot().FindLocation(id)
		req, err := tx.CreateApprovalRequest(domain.ApprovalRequest{
			PrisonID: loc.PrisonID, Kind: domain.KindDraft, LocationID: id, Payload: domain.DraftPayload{},
		})
		if err != nil {
			return err
		}
		requestID = req.ID
		return f.eachInSubtree(tx, id, func(l *domain.Location) { l.Lock(requestID) })
	})
	require.NoError(t, err)
	return func() {
		_, err := f.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			if _, err := tx.UpdateApprovalRequest(requestID, func(r *domain.ApprovalRequest) error {
				return r.Resolve(domain.ApprovalWithdrawn, "officer", now, "")
			}); err != nil {
				return err
			}
			return f.eachInSubtree(tx, id, func(l *domain.Location) { l.Unlock() })
		})
		require.NoError(t, err)
	}
}

func (f *fixture) eachInSubtree(tx domain.Transaction, id string, mutate func(*domain.Location)) error {
	loc, _ := tx.Snapshot().FindLocation(id)
	h := domain.NewHierarchy(tx.Snapshot().ListLocations(loc.PrisonID))
	for _, node := range h.Subtree(id) {
		if _, err := tx.UpdateLocation(node.ID, func(l *domain.Location) error {
			mutate(l)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func (f *fixture) get(t *testing.T, id string) View {
	t.Helper()
	v, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return v
}

func (f *fixture) lastTransaction(t *testing.T, prison string) domain.LinkedTransaction {
	t.Helper()
	txs, err := f.ledger.Transactions(context.Background(), prison)
	require.NoError(t, err)
	require.NotEmpty(t, txs)
	return txs[len(txs)-1]
}

func TestCreateStatusFollowsCertificationRequirement(t *testing.T) {
	f := newFixture(t)
	wingID, _, cellID := f.wing(t, "MDI", "X")

	cell := f.get(t, cellID)
	assert.Equal(t, domain.StatusDraft, cell.Status)
	assert.Equal(t, "X-1-001", cell.PathHierarchy)
	assert.Equal(t, "MDI-X-1-001", cell.Key)
	assert.Equal(t, domain.Capacity{MaxCapacity: 2, WorkingCapacity: 2, CertifiedNormalAccommodation: 2}, f.get(t, wingID).EffectiveCapacity)

	txs, err := f.ledger.Transactions(context.Background(), "MDI")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	for _, tx := range txs {
		assert.Equal(t, domain.TransactionLocationCreate, tx.TransactionType)
		assert.True(t, tx.IsClosed())
	}
	rows, err := f.ledger.LocationHistory(context.Background(), cellID)
	require.NoError(t, err)
	var status *string
	for _, row := range rows {
		if row.Attribute == domain.AttributeStatus {
			status = row.NewValue
		}
	}
	require.NotNil(t, status)
	assert.Equal(t, "DRAFT", *status)
	assert.Len(t, f.sink.OfType(events.LocationCreated), 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.LocationMutations.WithLabelValues("create")))

	w := f.create(t, "LEI", "", "W", domain.LocationTypeWing, nil)
	assert.Equal(t, domain.StatusActive, w.Status)
}

func TestCreateRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.create(t, "MDI", "", "X", domain.LocationTypeWing, nil)

	cases := []struct {
		name   string
		in     CreateInput
		reason domain.Reason
	}{
		{"duplicate key", CreateInput{PrisonID: "MDI", Code: "X", LocationType: domain.LocationTypeWing}, domain.ReasonLocationKeyConflict},
		{"cell without capacity", CreateInput{PrisonID: "MDI", ParentID: x.ID, Code: "001", LocationType: domain.LocationTypeCell}, domain.ReasonCapacityInvalid},
		{"working above max", CreateInput{
			PrisonID: "MDI", ParentID: x.ID, Code: "001", LocationType: domain.LocationTypeCell, AccommodationType: domain.AccommodationNormal,
			Capacity: &domain.Capacity{MaxCapacity: 1, WorkingCapacity: 2, CertifiedNormalAccommodation: 1},
		}, domain.ReasonCapacityInvalid},
		{"capacity on a wing", CreateInput{PrisonID: "MDI", Code: "Y", LocationType: domain.LocationTypeWing, Capacity: &domain.Capacity{MaxCapacity: 1}}, domain.ReasonCapacityInvalid},
		{"non residential", CreateInput{PrisonID: "MDI", Code: "S", LocationType: domain.LocationTypeStore}, domain.ReasonInvalidRequest},
		{"missing parent", CreateInput{PrisonID: "MDI", ParentID: "nope", Code: "1", LocationType: domain.LocationTypeLanding}, domain.ReasonLocationNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, officer(), tc.in)
			assert.True(t, domain.HasReason(err, tc.reason), "got %v", err)
		})
	}

	f.hold(t, x.ID)
	_, err := f.svc.Create(ctx, officer(), CreateInput{PrisonID: "MDI", ParentID: x.ID, Code: "1", LocationType: domain.LocationTypeLanding})
	assert.True(t, domain.HasReason(err, domain.ReasonLocationLocked), "got %v", err)

	txs, err := f.ledger.Transactions(ctx, "MDI")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestRenameCascadesPathOfDrafts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wingID, _, cellID := f.wing(t, "MDI", "X")

	renamed, err := f.svc.Rename(ctx, officer(), wingID, "Y")
	require.NoError(t, err)
	assert.Equal(t, "Y", renamed.PathHierarchy)
	assert.Equal(t, "MDI-Y-1-001", f.get(t, cellID).Key)

	history, err := f.ledger.TransactionHistory(ctx, f.lastTransaction(t, "MDI").ID)
	require.NoError(t, err)
	assert.Len(t, history.Changes[domain.AttributeCode], 1)
	assert.Len(t, history.Changes[domain.AttributePath], 3)

	f.create(t, "MDI", "", "Z", domain.LocationTypeWing, nil)
	_, err = f.svc.Rename(ctx, officer(), wingID, "Z")
	assert.True(t, domain.HasReason(err, domain.ReasonLocationKeyConflict), "got %v", err)

	f.force(t, wingID, func(l *domain.Location) { l.Status = domain.StatusActive })
	_, err = f.svc.Rename(ctx, officer(), wingID, "V")
	assert.True(t, domain.HasReason(err, domain.ReasonLocationNotDraft), "got %v", err)
}

func TestRenameActiveLocationWithoutApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wingID, _, cellID := f.wing(t, "LEI", "W")
	require.Equal(t, domain.StatusActive, f.get(t, wingID).Status)

	renamed, err := f.svc.Rename(ctx, officer(), wingID, "V")
	require.NoError(t, err)
	assert.Equal(t, "V", renamed.Code)
	assert.Equal(t, domain.StatusActive, renamed.Status)
	assert.Equal(t, "LEI-V-1-001", f.get(t, cellID).Key)

	_, err = f.svc.Deactivate(ctx, officer(), cellID, DeactivateInput{Reason: domain.DeactivatedOther, Permanent: true})
	require.NoError(t, err)
	_, err = f.svc.Rename(ctx, officer(), cellID, "002")
	assert.True(t, domain.HasReason(err, domain.ReasonLocationAlreadyDeactivated), "got %v", err)
}

func TestAddChildMovesSubtree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	xID, landingID, cellID := f.wing(t, "MDI", "X")
	y := f.create(t, "MDI", "", "Y", domain.LocationTypeWing, nil)

	moved, err := f.svc.AddChild(ctx, officer(), y.ID, landingID)
	require.NoError(t, err)
	require.Len(t, moved, 2)
	assert.Equal(t, "Y-1", moved[0].PathHierarchy)
	assert.Equal(t, "Y-1-001", f.get(t, cellID).PathHierarchy)
	assert.Equal(t, domain.Capacity{}, f.get(t, xID).EffectiveCapacity)
	assert.Equal(t, 2, f.get(t, y.ID).EffectiveCapacity.WorkingCapacity)

	_, err = f.svc.AddChild(ctx, officer(), landingID, y.ID)
	assert.True(t, domain.HasReason(err, domain.ReasonInvalidHierarchy), "cycle: got %v", err)
	_, err = f.svc.AddChild(ctx, officer(), cellID, xID)
	assert.True(t, domain.HasReason(err, domain.ReasonInvalidHierarchy), "cell parent: got %v", err)

	f.force(t, landingID, func(l *domain.Location) { l.Status = domain.StatusActive })
	_, err = f.svc.AddChild(ctx, officer(), xID, landingID)
	assert.True(t, domain.HasReason(err, domain.ReasonLocationNotDraft), "got %v", err)

	w := f.create(t, "LEI", "", "W", domain.LocationTypeWing, nil)
	v := f.create(t, "LEI", "", "V", domain.LocationTypeWing, nil)
	l := f.create(t, "LEI", w.ID, "1", domain.LocationTypeLanding, nil)
	_, err = f.svc.AddChild(ctx, officer(), v.ID, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "LEI-V-1", f.get(t, l.ID).Key)
}

func TestUpdateCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wingID, _, cellID := f.wing(t, "MDI", "X")

	updated, err := f.svc.UpdateCapacity(ctx, officer(), cellID, domain.Capacity{MaxCapacity: 2, WorkingCapacity: 1, CertifiedNormalAccommodation: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Capacity.WorkingCapacity)
	tx := f.lastTransaction(t, "MDI")
	assert.Equal(t, domain.TransactionCapacityChange, tx.TransactionType)
	history, err := f.ledger.TransactionHistory(ctx, tx.ID)
	require.NoError(t, err)
	assert.Len(t, history.Changes, 1)
	assert.Len(t, history.Changes[domain.AttributeWorkingCapacity], 1)

	_, err = f.svc.UpdateCapacity(ctx, officer(), cellID, domain.Capacity{MaxCapacity: 1, WorkingCapacity: 2, CertifiedNormalAccommodation: 1})
	assert.True(t, domain.HasReason(err, domain.ReasonCapacityInvalid), "got %v", err)
	_, err = f.svc.UpdateCapacity(ctx, officer(), wingID, domain.Capacity{MaxCapacity: 1})
	assert.True(t, domain.HasReason(err, domain.ReasonInvalidRequest), "got %v", err)

	f.force(t, cellID, func(l *domain.Location) { l.Status = domain.StatusActive })
	_, err = f.svc.UpdateCapacity(ctx, officer(), cellID, domain.Capacity{MaxCapacity: 2, WorkingCapacity: 2, CertifiedNormalAccommodation: 2})
	assert.True(t, domain.HasReason(err, domain.ReasonLocationRequiresApproval), "got %v", err)

	_, _, leiCell := f.wing(t, "LEI", "W")
	updated, err = f.svc.UpdateCapacity(ctx, officer(), leiCell, domain.Capacity{MaxCapacity: 3, WorkingCapacity: 3, CertifiedNormalAccommodation: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Capacity.MaxCapacity)
}

func TestDeactivateAndReactivateWithoutApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wingID, landingID, cellID := f.wing(t, "LEI", "W")

	_, err := f.svc.Deactivate(ctx, officer(), wingID, DeactivateInput{})
	assert.True(t, domain.HasReason(err, domain.ReasonInvalidRequest), "got %v", err)

	changed, err := f.svc.Deactivate(ctx, officer(), wingID, DeactivateInput{Reason: domain.DeactivatedOther, Description: "leak"})
	require.NoError(t, err)
	assert.Len(t, changed, 3)
	cell := f.get(t, cellID)
	assert.True(t, cell.Deactivated)
	assert.Equal(t, domain.Capacity{}, cell.EffectiveCapacity)
	assert.Equal(t, 2, cell.Capacity.WorkingCapacity)
	assert.Equal(t, domain.TransactionDeactivate, f.lastTransaction(t, "LEI").TransactionType)

	_, err = f.svc.Deactivate(ctx, officer(), wingID, DeactivateInput{Reason: domain.DeactivatedOther})
	assert.True(t, domain.HasReason(err, domain.ReasonLocationAlreadyDeactivated), "got %v", err)
	_, err = f.svc.Reactivate(ctx, officer(), landingID)
	assert.True(t, domain.HasReason(err, domain.ReasonInvalidHierarchy), "got %v", err)

	changed, err = f.svc.Reactivate(ctx, officer(), wingID)
	require.NoError(t, err)
	assert.Len(t, changed, 3)
	assert.Equal(t, 2, f.get(t, wingID).EffectiveCapacity.WorkingCapacity)
	_, err = f.svc.Reactivate(ctx, officer(), wingID)
	assert.True(t, domain.HasReason(err, domain.ReasonLocationNotDeactivated), "got %v", err)

	_, err = f.svc.Deactivate(ctx, officer(), cellID, DeactivateInput{Reason: domain.DeactivatedOther, Permanent: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusArchived, f.get(t, cellID).Status)
	_, err = f.svc.Reactivate(ctx, officer(), cellID)
	assert.True(t, domain.HasReason(err, domain.ReasonLocationAlreadyDeactivated), "got %v", err)

	mdiWing, _, _ := f.wing(t, "MDI", "X")
	_, err = f.svc.Deactivate(ctx, officer(), mdiWing, DeactivateInput{Reason: domain.DeactivatedOther})
	assert.True(t, domain.HasReason(err, domain.ReasonLocationRequiresApproval), "got %v", err)
	_, err = f.svc.Reactivate(ctx, officer(), mdiWing)
	assert.True(t, domain.HasReason(err, domain.ReasonLocationRequiresApproval), "got %v", err)
}

func TestDeactivationPolicyZeroesWorkingCapacity(t *testing.T) {
	f := newFixture(t)
	f.svc = New(f.store, f.svc.prisons, WithDeactivationPolicy(domain.DeactivationZeroWorkingCapacity))
	wingID, _, cellID := f.wing(t, "LEI", "W")

	_, err := f.svc.Deactivate(context.Background(), officer(), wingID, DeactivateInput{Reason: domain.DeactivatedRefurbishment})
	require.NoError(t, err)
	assert.Equal(t, 0, f.get(t, cellID).Capacity.WorkingCapacity)
}

func TestDeleteDraftRemovesSubtreeAndKeepsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wingID, _, cellID := f.wing(t, "MDI", "X")

	release := f.hold(t, cellID)
	assert.True(t, domain.HasReason(f.svc.DeleteDraft(ctx, officer(), wingID), domain.ReasonLocationLocked))
	release()

	require.NoError(t, f.svc.DeleteDraft(ctx, officer(), wingID))
	_, err := f.svc.Get(ctx, cellID)
	assert.True(t, domain.HasReason(err, domain.ReasonLocationNotFound))

	rows, err := f.ledger.LocationHistory(ctx, cellID)
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
	assert.Equal(t, domain.TransactionLocationDelete, f.lastTransaction(t, "MDI").TransactionType)
	deleted := f.sink.OfType(events.LocationDeleted)
	require.Len(t, deleted, 1)
	assert.Len(t, deleted[0].LocationIDs, 3)

	w := f.create(t, "LEI", "", "W", domain.LocationTypeWing, nil)
	assert.True(t, domain.HasReason(f.svc.DeleteDraft(ctx, officer(), w.ID), domain.ReasonLocationNotDraft))
}

func TestSummaryRollsUpCapacity(t *testing.T) {
	f := newFixture(t)
	f.wing(t, "MDI", "X")
	y := f.create(t, "MDI", "", "Y", domain.LocationTypeWing, nil)
	f.create(t, "MDI", y.ID, "002", domain.LocationTypeCell, &domain.Capacity{MaxCapacity: 3, WorkingCapacity: 2, CertifiedNormalAccommodation: 3})

	summary, err := f.svc.Summary(context.Background(), "MDI")
	require.NoError(t, err)
	assert.Len(t, summary.Locations, 2)
	assert.Equal(t, domain.Capacity{MaxCapacity: 5, WorkingCapacity: 4, CertifiedNormalAccommodation: 5}, summary.Totals)
	assert.Zero(t, summary.PendingApprovals)
	assert.Equal(t, "X", summary.Locations[0].Code)
	assert.Equal(t, 3, summary.Locations[0].Count())
}
