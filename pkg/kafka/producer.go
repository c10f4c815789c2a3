package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fortuneofweb3/blabz/pkg/logging"
)

// Producer publishes curation events with franz-go.
type Producer struct {
	client  *kgo.Client
	topic   string
	source  string
	logger  logging.Logger
	produce func(ctx context.Context, records ...*kgo.Record) kgo.ProduceResults
}

// NewProducer creates a producer writing to topic.
func NewProducer(brokers []string, topic, clientID string, logger logging.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if clientID == "" {
		clientID = "blabz"
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.ProducerBatchMaxBytes(1000000),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Producer{
		client:  client,
		topic:   topic,
		source:  clientID,
		logger:  logger,
		produce: client.ProduceSync,
	}, nil
}

func (p *Producer) Close() error {
	p.client.Close()
	return nil
}

func (p *Producer) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}

// PublishPostCurated produces one record per event keyed by post id, so every
// event for a post lands on the same partition.
func (p *Producer) PublishPostCurated(ctx context.Context, events []PostCuratedEvent) error {
	if len(events) == 0 {
		return nil
	}
	records, err := p.records(events)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.produce(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce %d events: %w", len(records), err)
	}
	p.logger.WithFields(logging.Fields{
		"topic":  p.topic,
		"events": len(records),
	}).Debug("Published curation events")
	return nil
}

func (p *Producer) records(events []PostCuratedEvent) ([]*kgo.Record, error) {
	records := make([]*kgo.Record, 0, len(events))
	for _, event := range events {
		if event.EventType == "" {
			event.EventType = EventTypePostCurated
		}
		if event.Source == "" {
			event.Source = p.source
		}
		if event.SchemaVersion == "" {
			event.SchemaVersion = SchemaVersion
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		value, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event %s: %w", event.EventID, err)
		}
		records = append(records, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(event.PostID),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "source", Value: []byte(event.Source)},
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "handle", Value: []byte(event.Handle)},
			},
		})
	}
	return records, nil
}
