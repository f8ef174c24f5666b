package invalidate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaBackend publishes invalidation events to Redpanda/Kafka.
type KafkaBackend struct {
	client *kgo.Client
	topic  string
}

// KafkaBackendConfig holds configuration for the kafka backend.
type KafkaBackendConfig struct {
	Brokers []string
	Topic   string
}

// NewKafkaBackend creates a new kafka backend.
func NewKafkaBackend(cfg KafkaBackendConfig) (*KafkaBackend, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),

		// Wait for all in-sync replicas to acknowledge
		kgo.RequiredAcks(kgo.AllISRAcks()),

		kgo.ProducerBatchCompression(kgo.GzipCompression()),

		// Linear backoff capped at 10s; the dispatcher timeout bounds the total
		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
			return backoff
		}),
		kgo.RequestRetries(5),

		kgo.ProducerLinger(10*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &KafkaBackend{
		client: client,
		topic:  cfg.Topic,
	}, nil
}

func (b *KafkaBackend) Name() string {
	return "kafka"
}

func (b *KafkaBackend) Invalidate(ctx context.Context, ev Event) error {
	record, err := b.record(ev)
	if err != nil {
		return NewBackendError(b.Name(), "marshal", err)
	}

	if err := b.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return NewBackendError(b.Name(), "publish", err)
	}
	return nil
}

// record keys events by collection so that changes to one id space are
// consumed in order.
func (b *KafkaBackend) record(ev Event) (*kgo.Record, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic: b.topic,
		Key:   []byte(ev.Collection.String()),
		Value: value,
	}, nil
}

// Close closes the producer.
func (b *KafkaBackend) Close() error {
	b.client.Close()
	return nil
}
