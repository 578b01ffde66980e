package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"ecosystem/analytics/config"
	"ecosystem/analytics/models"
)

const clientID = "analytics-service"

// PublishError reports a message that could not be delivered to the bus.
type PublishError struct {
	Topic   string
	EventID string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish event %s to %s: %v", e.EventID, e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes accepted events to the bus. It holds a single writer,
// created on first use and reused until a write fails; the next publish
// then builds a fresh one.
type Producer struct {
	topic     string
	logger    *slog.Logger
	newWriter func() messageWriter

	mu     sync.Mutex
	writer messageWriter
}

func NewProducer(cfg config.KafkaConfig, topic string, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		topic:  topic,
		logger: logger,
		newWriter: func() messageWriter {
			return &kafka.Writer{
				Addr:                   kafka.TCP(cfg.Brokers...),
				Topic:                  topic,
				Balancer:               &kafka.Hash{},
				MaxAttempts:            cfg.Retries + 1,
				WriteBackoffMin:        cfg.InitialRetryDelay,
				BatchTimeout:           10 * time.Millisecond,
				RequiredAcks:           kafka.RequireOne,
				AllowAutoTopicCreation: true,
				Transport:              &kafka.Transport{ClientID: clientID},
			}
		},
	}
}

func (p *Producer) Topic() string { return p.topic }

// Publish sends the event and never fails the caller. Delivery errors are
// logged with the event id.
func (p *Producer) Publish(ctx context.Context, ev models.AnalyticsEvent) {
	if err := p.publish(ctx, ev); err != nil {
		p.logger.Error("failed to publish analytics event",
			"eventId", ev.EventID, "journeyId", ev.JourneyID, "topic", p.topic, "error", err)
		return
	}
	p.logger.Debug("published analytics event", "eventId", ev.EventID, "topic", p.topic)
}

func (p *Producer) publish(ctx context.Context, ev models.AnalyticsEvent) error {
	msg, err := buildMessage(ev)
	if err != nil {
		return &PublishError{Topic: p.topic, EventID: ev.EventID, Err: err}
	}

	w := p.acquire()
	if err := w.WriteMessages(ctx, msg); err != nil {
		p.invalidate(w)
		return &PublishError{Topic: p.topic, EventID: ev.EventID, Err: err}
	}
	return nil
}

func (p *Producer) acquire() messageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer == nil {
		p.writer = p.newWriter()
	}
	return p.writer
}

// invalidate drops w if it is still the current writer. A concurrent
// publisher may already have replaced it.
func (p *Producer) invalidate(w messageWriter) {
	p.mu.Lock()
	if p.writer != w {
		p.mu.Unlock()
		return
	}
	p.writer = nil
	p.mu.Unlock()

	if err := w.Close(); err != nil {
		p.logger.Warn("error closing unhealthy kafka writer", "error", err)
	}
}

// Close flushes and releases the writer, if any.
func (p *Producer) Close() error {
	p.mu.Lock()
	w := p.writer
	p.writer = nil
	p.mu.Unlock()

	if w == nil {
		return nil
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	p.logger.Info("kafka producer closed", "topic", p.topic)
	return nil
}

func buildMessage(ev models.AnalyticsEvent) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}

	key := ev.JourneyID
	if key == "" {
		key = ev.EventID
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "eventName", Value: []byte(ev.EventName)},
			{Key: "domain", Value: []byte(ev.Domain)},
			{Key: "journeyId", Value: []byte(ev.JourneyID)},
			{Key: "userEcosystemId", Value: []byte(ev.UserEcosystemID)},
		},
	}, nil
}
