package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConfig selects the brokers and topics of the Kafka sink.
type KafkaConfig struct {
	Brokers     []string
	EventTopic  string
	AuditTopic  string
	Partitions  int32
	Replication int16
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.EventTopic == "" {
		c.EventTopic = "locationcore.events"
	}
	if c.AuditTopic == "" {
		c.AuditTopic = "locationcore.audit"
	}
	if c.Partitions <= 0 {
		c.Partitions = 1
	}
	if c.Replication <= 0 {
		c.Replication = 1
	}
	return c
}

// KafkaSink produces events and audit records synchronously, keyed by
// prison so one prison's records stay ordered.
type KafkaSink struct {
	client *kgo.Client
	cfg    KafkaConfig
}

// NewKafkaSink connects to the brokers and creates the topics when missing.
func NewKafkaSink(ctx context.Context, cfg KafkaConfig, opts ...kgo.Opt) (*KafkaSink, error) {
	cfg = cfg.withDefaults()
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka sink requires at least one broker")
	}
	client, err := kgo.NewClient(append([]kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := ensureTopics(ctx, kadm.NewClient(client), cfg); err != nil {
		client.Close()
		return nil, err
	}
	return &KafkaSink{client: client, cfg: cfg}, nil
}

func ensureTopics(ctx context.Context, adm *kadm.Client, cfg KafkaConfig) error {
	resp, err := adm.CreateTopics(ctx, cfg.Partitions, cfg.Replication, nil, cfg.EventTopic, cfg.AuditTopic)
	if err != nil {
		return fmt.Errorf("create kafka topics: %w", err)
	}
	for _, t := range resp.Sorted() {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create kafka topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}

func (k *KafkaSink) Publish(ctx context.Context, evts ...Event) error {
	recs := make([]*kgo.Record, 0, len(evts))
	for _, e := range evts {
		rec, err := record(k.cfg.EventTopic, e.PrisonID, string(e.Type), e)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}
	return k.produce(ctx, recs)
}

func (k *KafkaSink) Record(ctx context.Context, records ...AuditRecord) error {
	recs := make([]*kgo.Record, 0, len(records))
	for _, r := range records {
		rec, err := record(k.cfg.AuditTopic, r.PrisonID, r.Operation, r)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}
	return k.produce(ctx, recs)
}

func (k *KafkaSink) produce(ctx context.Context, recs []*kgo.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if err := k.client.ProduceSync(ctx, recs...).FirstErr(); err != nil {
		return fmt.Errorf("produce to kafka: %w", err)
	}
	return nil
}

// Close flushes nothing; every produce is synchronous.
func (k *KafkaSink) Close() {
	k.client.Close()
}

func record(topic, key, kind string, v any) (*kgo.Record, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s record: %w", topic, err)
	}
	return &kgo.Record{
		Topic:   topic,
		Key:     []byte(key),
		Value:   body,
		Headers: []kgo.RecordHeader{{Key: "type", Value: []byte(kind)}},
	}, nil
}
