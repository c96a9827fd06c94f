package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Config holds Kafka publisher configuration.
type Config struct {
	// Brokers is a comma-separated seed broker list.
	Brokers string
	// ProducerName identifies this process in envelope metadata.
	ProducerName string
	// DeliveryTimeout bounds how long a record may wait for acknowledgment.
	DeliveryTimeout time.Duration
}

// recordProducer is the slice of the franz-go client the publisher uses;
// kept narrow so tests can substitute a fake transport.
type recordProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher wraps payloads in the event envelope and produces them
// synchronously: Publish returns only after the transport acknowledges the
// record, giving at-least-once semantics from the publisher's side. Failures
// are surfaced as *PublishError and never retried here.
type KafkaPublisher struct {
	producer recordProducer
	client   *kgo.Client
	name     string
	logger   *zap.Logger
}

// NewKafkaPublisher builds a publisher with all-ISR acks.
func NewKafkaPublisher(cfg Config, logger *zap.Logger) (*KafkaPublisher, error) {
	if logger == nil {
		panic("logger is required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(strings.Split(cfg.Brokers, ",")...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.AllowAutoTopicCreation(),
	}
	if cfg.DeliveryTimeout > 0 {
		opts = append(opts, kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	name := cfg.ProducerName
	if name == "" {
		name = "users-service"
	}

	return &KafkaPublisher{producer: client, client: client, name: name, logger: logger}, nil
}

// Publish wraps payload in a fresh envelope and produces it keyed by key.
func (p *KafkaPublisher) Publish(ctx context.Context, topic, eventType, key string, payload any) error {
	envelope := Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: EnvelopeVersion,
		OccurredAt:   time.Now().UTC(),
		Producer:     p.name,
		Key:          key,
		Payload:      payload,
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		return &PublishError{Topic: topic, Err: err}
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}

	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return &PublishError{Topic: topic, Err: err}
	}

	p.logger.Debug("event published",
		zap.String("topic", topic),
		zap.String("event_type", eventType),
		zap.String("key", key),
		zap.String("event_id", envelope.EventID))
	return nil
}

// Close flushes buffered records and shuts the client down.
func (p *KafkaPublisher) Close() {
	if p.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("kafka publisher closed with unflushed records", zap.Error(err))
	}
	p.client.Close()
}

// NoopPublisher drops every event. Used when the bus is not configured, e.g.
// local development without Kafka.
type NoopPublisher struct {
	logger *zap.Logger
}

// NewNoopPublisher constructs a NoopPublisher.
func NewNoopPublisher(logger *zap.Logger) *NoopPublisher {
	return &NoopPublisher{logger: logger}
}

// Publish discards the event.
func (p *NoopPublisher) Publish(ctx context.Context, topic, eventType, key string, payload any) error {
	if p.logger != nil {
		p.logger.Debug("event dropped (noop publisher)",
			zap.String("topic", topic),
			zap.String("event_type", eventType),
			zap.String("key", key))
	}
	return nil
}
