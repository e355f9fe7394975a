// Package kafka publishes memory events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/mnemo/pkg/eventstream"
	"github.com/papercomputeco/mnemo/pkg/logger"
)

const (
	defaultBatchTimeout = 10 * time.Millisecond
	defaultWriteTimeout = 10 * time.Second

	headerEventType = "event_type"
	headerSchema    = "schema_version"
)

var (
	ErrNoBrokers = errors.New("kafka publisher requires at least one broker")
	ErrNoTopic   = errors.New("kafka publisher requires a topic")
)

// Config configures the Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string

	// BatchTimeout bounds how long the writer waits to fill a batch.
	BatchTimeout time.Duration
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Publisher writes MemoryEvents to Kafka. Messages are keyed by owner so
// each owner's events land on one partition in order.
type Publisher struct {
	writer *kafkago.Writer
	log    *slog.Logger
}

// NewPublisher creates a Kafka publisher. No connection is made until the
// first Publish.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		return nil, ErrNoTopic
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}

	return &Publisher{writer: w, log: logger.OrNop(cfg.Logger)}, nil
}

// Message encodes event as a Kafka message.
func Message(event *eventstream.MemoryEvent) (kafkago.Message, error) {
	if event == nil {
		return kafkago.Message{}, eventstream.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encoding memory event: %w", err)
	}

	return kafkago.Message{
		Key:   []byte(event.Memory.OwnerID),
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: headerEventType, Value: []byte(event.EventType)},
			{Key: headerSchema, Value: []byte(fmt.Sprint(event.SchemaVersion))},
		},
	}, nil
}

// Publish writes one event and blocks until the broker acknowledges it.
func (p *Publisher) Publish(ctx context.Context, event *eventstream.MemoryEvent) error {
	msg, err := Message(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("publishing memory event failed",
			"event_type", event.EventType,
			"memory_id", event.Memory.ID,
			"error", err,
		)
		return fmt.Errorf("publishing %s: %w", event.EventType, err)
	}

	p.log.Debug("published memory event",
		"event_type", event.EventType,
		"memory_id", event.Memory.ID,
		"topic", p.writer.Topic,
	)
	return nil
}

// Close flushes pending writes and releases the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
