package publisher

import (
	"context"
	"time"

	"github.com/fjod/go_loyalty/internal/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	defaultEventTick = time.Second
	defaultBatchSize = 100
)

type EventSource interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*repository.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller publishes committed order events to Kafka. An event is
// marked processed only after Kafka accepted it, so delivery is at least
// once.
type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	batchSize int
	source    EventSource
	writer    messageWriter
	log       *zap.Logger
}

func NewOutboxPoller(source EventSource, topic string, log *zap.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: defaultEventTick,
		batchSize: defaultBatchSize,
		source:    source,
		writer:    w,
		log:       log,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.source.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.log.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			// keep order per aggregate: later events wait for the next tick
			p.log.Warn("failed to publish outbox event",
				zap.Int64("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Error(err))
			return
		}

		if err := p.source.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Error("failed to mark outbox event as processed",
				zap.Int64("event_id", event.ID),
				zap.Error(err))
			return
		}
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *repository.OutboxEvent) error {
	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(writeCtx, msg)
}
