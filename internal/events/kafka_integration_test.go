//go:build integration

package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"

	"locationcore/pkg/domain"
)

func TestKafkaSinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v23.3.3")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	broker, err := container.KafkaSeedBroker(ctx)
	require.NoError(t, err)

	cfg := KafkaConfig{Brokers: []string{broker}, EventTopic: "it.events", AuditTopic: "it.audit"}
	sink, err := NewKafkaSink(ctx, cfg)
	require.NoError(t, err)
	defer sink.Close()

	// topics already exist the second time round
	again, err := NewKafkaSink(ctx, cfg)
	require.NoError(t, err)
	again.Close()

	actor := domain.NewActor("alice", nil)
	evt := NewEvent(LocationCreated, "MDI", actor)
	evt.LocationIDs = []string{"loc-1"}
	require.NoError(t, sink.Publish(ctx, evt))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(cfg.EventTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(pollCtx)
	require.Empty(t, fetches.Errors())
	recs := fetches.Records()
	require.Len(t, recs, 1)
	require.Equal(t, "MDI", string(recs[0].Key))

	var got Event
	require.NoError(t, json.Unmarshal(recs[0].Value, &got))
	require.Equal(t, evt.ID, got.ID)
	require.Equal(t, []string{"loc-1"}, got.LocationIDs)
}
