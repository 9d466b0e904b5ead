// Package kafka publishes refreshed earthquakes to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-watch/internal/config"
	"github.com/couchcryptid/quake-watch/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one message per distributed earthquake, keyed by ID so
// a compacted topic keeps the latest version of each record.
// It implements pipeline.Subscriber.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, topic: cfg.KafkaTopic, logger: logger}
}

func (p *Publisher) Name() string { return "kafka" }

// Receive publishes the list in a single WriteMessages call. Records that
// fail to serialize are logged and skipped.
func (p *Publisher) Receive(ctx context.Context, quakes []domain.Earthquake) error {
	if len(quakes) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, 0, len(quakes))
	for i := range quakes {
		msg, err := serializeToMessage(quakes[i])
		if err != nil {
			p.logger.Warn("skipping record", "earthquake_id", quakes[i].ID, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("%w: publish to %s: %w", domain.ErrTransport, p.topic, err)
	}
	p.logger.Debug("published earthquakes", "topic", p.topic, "count", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals an Earthquake into a Kafka message.
func serializeToMessage(eq domain.Earthquake) (kafkago.Message, error) {
	data, err := json.Marshal(eq)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize earthquake: %w", err)
	}
	recorded := time.Unix(eq.RecordedAtEpoch, 0).UTC()
	return kafkago.Message{
		Key:   []byte(eq.ID),
		Value: data,
		Time:  recorded,
		Headers: []kafkago.Header{
			{Key: "provider", Value: []byte(eq.Provider)},
			{Key: "recorded_at", Value: []byte(recorded.Format(time.RFC3339))},
			{Key: "magnitude", Value: []byte(strconv.FormatFloat(eq.Magnitude, 'f', 1, 64))},
		},
	}, nil
}
