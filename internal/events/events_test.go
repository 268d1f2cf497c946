package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"locationcore/pkg/domain"
)

var fixed = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testActor() domain.Actor {
	return domain.NewActor("alice", domain.ClockFunc(func() time.Time { return fixed }))
}

func TestAuditFromChangesSkipsHistoryRows(t *testing.T) {
	changes := []domain.Change{
		{Entity: domain.EntityLocation, Action: domain.ActionUpdate, EntityID: "l1", PrisonID: "MDI"},
		{Entity: domain.EntityLocationHistory, Action: domain.ActionCreate, EntityID: "h1", PrisonID: "MDI"},
		{Entity: domain.EntityCellCertificate, Action: domain.ActionCreate, EntityID: "c1", PrisonID: "MDI"},
	}
	records := AuditFromChanges(changes, "approve", "tx-1", testActor())
	require.Len(t, records, 2)
	assert.Equal(t, "l1", records[0].EntityID)
	assert.Equal(t, domain.EntityCellCertificate, records[1].Entity)
	for _, r := range records {
		assert.Equal(t, "alice", r.Actor)
		assert.Equal(t, fixed, r.At)
		assert.Equal(t, "tx-1", r.TransactionID)
		assert.NotEmpty(t, r.ID)
	}
}

type failing struct{ err error }

func (f failing) Publish(context.Context, ...Event) error      { return f.err }
func (f failing) Record(context.Context, ...AuditRecord) error { return f.err }

func TestFanoutDeliversToAllAndJoinsErrors(t *testing.T) {
	ctx := context.Background()
	mem := NewMemorySink()
	boom := errors.New("boom")
	fan := Fanout{Publishers: []Publisher{failing{boom}, mem}, Sinks: []AuditSink{mem, failing{boom}}}

	evt := NewEvent(ApprovalRejected, "MDI", testActor())
	err := fan.Publish(ctx, evt)
	require.ErrorIs(t, err, boom)
	assert.Len(t, mem.OfType(ApprovalRejected), 1)
	assert.Empty(t, mem.OfType(LocationCreated))

	err = fan.Record(ctx, AuditRecord{EntityID: "x"})
	require.ErrorIs(t, err, boom)
	assert.Len(t, mem.Records(), 1)

	assert.NoError(t, Fanout{}.Publish(ctx, evt))
	assert.NoError(t, Discard{}.Record(ctx))
}

func TestLogSinkWritesAuditLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx := context.Background()

	require.NoError(t, sink.Record(ctx, AuditRecord{
		Entity: domain.EntityLocation, Action: domain.ActionUpdate, Operation: "approve", EntityID: "l1",
	}))
	require.NoError(t, sink.Publish(ctx, NewEvent(LocationAmended, "MDI", testActor())))

	out := buf.String()
	assert.Contains(t, out, `"log_type":"audit"`)
	assert.Contains(t, out, `"event":"location_update"`)
	assert.Contains(t, out, `"msg":"location.amended"`)
}

func TestKafkaSinkRequiresBrokers(t *testing.T) {
	_, err := NewKafkaSink(context.Background(), KafkaConfig{})
	assert.Error(t, err)
}
