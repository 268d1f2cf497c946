package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"locationcore/internal/core"
	"locationcore/internal/infra/persistence/memory"
	"locationcore/pkg/domain"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newStore() *memory.Store {
	return memory.NewStore(core.NewDefaultRulesEngine(), memory.WithClock(func() time.Time { return t0 }))
}

func actor() domain.Actor {
	return domain.NewActor("officer", domain.ClockFunc(func() time.Time { return t0 }))
}

func strp(s string) *string { return &s }

func TestRecordChangeSkipsUnchangedValues(t *testing.T) {
	store := newStore()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		linked, err := CreateTransaction(tx, "MDI", domain.TransactionLocationUpdate, "rename", actor())
		require.NoError(t, err)
		assert.Equal(t, t0, linked.TxStartTime)
		assert.False(t, linked.IsClosed())

		_, written, err := RecordChange(tx, linked, "loc-1", domain.AttributeCode, strp("A"), strp("A"), "officer", t0)
		require.NoError(t, err)
		assert.False(t, written)

		row, written, err := RecordChange(tx, linked, "loc-1", domain.AttributeCode, strp("A"), strp("B"), "officer", t0)
		require.NoError(t, err)
		assert.True(t, written)
		assert.Equal(t, "MDI", row.PrisonID)

		_, err = CloseTransaction(tx, linked, t0.Add(time.Second))
		return err
	})
	require.NoError(t, err)
}

func TestUnclosedTransactionBlocksCommit(t *testing.T) {
	store := newStore()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := CreateTransaction(tx, "MDI", domain.TransactionLocationUpdate, "left open", actor())
		return err
	})
	assert.True(t, domain.HasReason(err, domain.ReasonLedgerIncomplete), "got %v", err)
}

func TestCreateTransactionRequiresPrison(t *testing.T) {
	store := newStore()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := CreateTransaction(tx, "", domain.TransactionLocationUpdate, "", actor())
		return err
	})
	assert.True(t, domain.HasCode(err, domain.CodeValidation))
}

func TestRecorderDiffWritesOneRowPerChangedAttribute(t *testing.T) {
	store := newStore()
	parent := "wing-1"
	before := domain.Location{
		Base: domain.Base{ID: "cell-1"}, PrisonID: "MDI", Code: "001", PathHierarchy: "A-001",
		LocationType: domain.LocationTypeCell, ParentID: &parent, Position: 1, Status: domain.StatusDraft,
		Capacity: &domain.Capacity{MaxCapacity: 2, WorkingCapacity: 2, CertifiedNormalAccommodation: 2},
	}
	after := before.Clone()
	after.Lock("req-1")
	after.Unlock()
	after.Status = domain.StatusActive
	after.CertifiedCell = true
	after.Capacity.WorkingCapacity = 1

	var linkedID string
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		rec, err := Begin(tx, "MDI", domain.TransactionApprovalApproved, "approve", actor())
		require.NoError(t, err)
		require.NoError(t, rec.Diff(before, after))
		assert.Equal(t, 3, rec.Rows())
		linkedID = rec.Transaction().ID
		closed, err := rec.Close()
		require.NoError(t, err)
		assert.True(t, closed.IsClosed())
		return nil
	})
	require.NoError(t, err)

	history, err := NewService(store).TransactionHistory(context.Background(), linkedID)
	require.NoError(t, err)
	require.Len(t, history.Changes, 3)
	status := history.Changes[domain.AttributeStatus]
	require.Len(t, status, 1)
	assert.Equal(t, "DRAFT", *status[0].OldValue)
	assert.Equal(t, "ACTIVE", *status[0].NewValue)
	assert.Equal(t, "1", *history.Changes[domain.AttributeWorkingCapacity][0].NewValue)
	assert.Equal(t, "true", *history.Changes[domain.AttributeCertified][0].NewValue)
}

func TestLocationHistoryReturnsDisplayableRowsInOrder(t *testing.T) {
	store := newStore()
	var loc domain.Location
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		loc, err = tx.CreateLocation(domain.Location{
			PrisonID: "MDI", Code: "A", PathHierarchy: "A",
			LocationType: domain.LocationTypeWing, Status: domain.StatusDraft,
		})
		require.NoError(t, err)
		rec, err := Begin(tx, "MDI", domain.TransactionLocationCreate, "create wing", actor())
		require.NoError(t, err)
		require.NoError(t, rec.Created(loc))
		_, err = rec.Close()
		return err
	})
	require.NoError(t, err)

	svc := NewService(store)
	rows, err := svc.LocationHistory(context.Background(), loc.ID)
	require.NoError(t, err)
	for _, row := range rows {
		assert.True(t, row.Attribute.Displayable(), "row %s should be hidden", row.Attribute)
		assert.Nil(t, row.OldValue)
	}
	attrs := make([]domain.HistoryAttribute, 0, len(rows))
	for _, row := range rows {
		attrs = append(attrs, row.Attribute)
	}
	assert.Contains(t, attrs, domain.AttributeCode)
	assert.Contains(t, attrs, domain.AttributeStatus)
	assert.NotContains(t, attrs, domain.AttributePath)

	_, err = svc.LocationHistory(context.Background(), "missing")
	assert.True(t, domain.HasCode(err, domain.CodeNotFound))
	_, err = svc.TransactionHistory(context.Background(), "missing")
	assert.True(t, domain.HasReason(err, domain.ReasonTransactionNotFound))

	txs, err := svc.Transactions(context.Background(), "MDI")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}
