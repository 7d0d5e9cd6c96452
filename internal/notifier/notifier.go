package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_loyalty/pkg/circuitbreaker"
	"github.com/fjod/go_loyalty/pkg/clock"
	"github.com/fjod/go_loyalty/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var errEmptyDestination = errors.New("notification destination is empty")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is the value written to the notifications topic.
type Message struct {
	Destination string    `json:"destination"`
	Text        string    `json:"text"`
	SentAt      time.Time `json:"sent_at"`
}

// KafkaNotifier hands messages to the delivery gateway through Kafka. The
// destination is the message key, so messages to one recipient stay ordered.
type KafkaNotifier struct {
	writer  messageWriter
	breaker *circuitbreaker.Breaker
	timeout time.Duration
	clock   clock.Clock
	log     *zap.Logger
}

func NewKafkaNotifier(brokers []string, topic string, breaker *circuitbreaker.Breaker, clk clock.Clock, log *zap.Logger) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	return newKafkaNotifier(w, breaker, clk, log)
}

func newKafkaNotifier(w messageWriter, breaker *circuitbreaker.Breaker, clk clock.Clock, log *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		writer:  w,
		breaker: breaker,
		timeout: 5 * time.Second,
		clock:   clk,
		log:     log,
	}
}

func (n *KafkaNotifier) Send(ctx context.Context, destination, text string) error {
	if destination == "" {
		return errEmptyDestination
	}
	value, err := json.Marshal(Message{
		Destination: destination,
		Text:        text,
		SentAt:      n.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = n.breaker.Do(func() error {
		writeCtx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		return n.writer.WriteMessages(writeCtx, kafka.Message{
			Key:   []byte(destination),
			Value: value,
		})
	})
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	logger.WithTrace(ctx, n.log).Debug("notification sent", zap.String("destination", maskPhone(destination)))
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// LogNotifier writes messages to the log instead of delivering them.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, destination, text string) error {
	logger.WithTrace(ctx, n.log).Info("notification",
		zap.String("destination", maskPhone(destination)),
		zap.String("text", text))
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return "***" + phone[len(phone)-4:]
}
