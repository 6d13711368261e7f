package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storecore/internal/logger"
	"storecore/internal/metrics"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a topic keyed by aggregate id, so every
// event of one order lands on the same partition in order.
type KafkaPublisher struct {
	w         MessageWriter
	published *metrics.Counter
	failed    *metrics.Counter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.L().Error("kafka async write failed",
					zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}
}

func NewKafkaPublisher(w MessageWriter, reg *metrics.Registry) *KafkaPublisher {
	return &KafkaPublisher{
		w:         w,
		published: reg.Counter("events.kafka.published"),
		failed:    reg.Counter("events.kafka.failed"),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.Key),
		Value: value,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "event_version", Value: []byte(fmt.Sprint(evt.Version))},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.failed.Inc()
		return fmt.Errorf("write %s: %w", evt.Type, err)
	}
	p.published.Inc()
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
