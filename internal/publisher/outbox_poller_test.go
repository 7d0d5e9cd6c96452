package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_loyalty/internal/repository"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"
)

type mockSource struct {
	mu        sync.Mutex
	events    []*repository.OutboxEvent
	processed []int64
	fetchErr  error
}

func (m *mockSource) GetUnprocessedEvents(_ context.Context, limit int) ([]*repository.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	done := make(map[int64]bool, len(m.processed))
	for _, id := range m.processed {
		done[id] = true
	}
	var out []*repository.OutboxEvent
	for _, ev := range m.events {
		if !done[ev.ID] && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *mockSource) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed = append(m.processed, id)
	return nil
}

func (m *mockSource) processedIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.processed...)
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafkaGo.Message
	failOn   string
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range msgs {
		if w.failOn != "" && string(m.Key) == w.failOn {
			return errors.New("write failed")
		}
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newTestPoller(source EventSource, w messageWriter) *OutboxPoller {
	return &OutboxPoller{
		timeout:   time.Second,
		eventTick: 10 * time.Millisecond,
		batchSize: defaultBatchSize,
		source:    source,
		writer:    w,
		log:       zap.NewNop(),
	}
}

func testEvents() []*repository.OutboxEvent {
	return []*repository.OutboxEvent{
		{ID: 1, AggregateID: "order-1", EventType: repository.EventOrderCreated, Payload: json.RawMessage(`{"order_id":"order-1"}`)},
		{ID: 2, AggregateID: "order-2", EventType: repository.EventOrderCreated, Payload: json.RawMessage(`{"order_id":"order-2"}`)},
		{ID: 3, AggregateID: "order-1", EventType: repository.EventOrderStatusChanged, Payload: json.RawMessage(`{"order_id":"order-1","to":"processing"}`)},
	}
}

func TestOutboxPoller_PublishesAndMarks(t *testing.T) {
	source := &mockSource{events: testEvents()}
	w := &fakeWriter{}
	p := newTestPoller(source, w)

	p.processUnpublishedEvents(context.Background())

	assert.Equal(t, []int64{1, 2, 3}, source.processedIDs())
	require.Len(t, w.messages, 3)
	assert.Equal(t, "order-1", string(w.messages[0].Key))
	require.Len(t, w.messages[2].Headers, 1)
	assert.Equal(t, "event_type", w.messages[2].Headers[0].Key)
	assert.Equal(t, repository.EventOrderStatusChanged, string(w.messages[2].Headers[0].Value))
}

func TestOutboxPoller_StopsBatchOnPublishFailure(t *testing.T) {
	source := &mockSource{events: testEvents()}
	w := &fakeWriter{failOn: "order-2"}
	p := newTestPoller(source, w)

	p.processUnpublishedEvents(context.Background())
	assert.Equal(t, []int64{1}, source.processedIDs())

	w.failOn = ""
	p.processUnpublishedEvents(context.Background())
	assert.Equal(t, []int64{1, 2, 3}, source.processedIDs())
}

func TestOutboxPoller_FetchErrorIsTolerated(t *testing.T) {
	source := &mockSource{fetchErr: errors.New("db down")}
	w := &fakeWriter{}
	p := newTestPoller(source, w)

	p.processUnpublishedEvents(context.Background())
	assert.Empty(t, w.messages)
}

func TestOutboxPoller_RunStopsOnCancel(t *testing.T) {
	source := &mockSource{events: testEvents()}
	p := newTestPoller(source, &fakeWriter{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(source.processedIDs()) == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka container test in short mode")
	}
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	const topic = "order-events"
	createTopic(t, brokerAddr, topic)

	source := &mockSource{events: testEvents()[:1]}
	writer := &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokerAddr),
		Topic:        topic,
		Balancer:     &kafkaGo.Hash{},
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	defer writer.Close()

	p := newTestPoller(source, writer)
	p.timeout = 10 * time.Second
	p.eventTick = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go p.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    topic,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "order-1", string(msg.Key))
	assert.JSONEq(t, `{"order_id":"order-1"}`, string(msg.Value))

	require.Eventually(t, func() bool { return len(source.processedIDs()) == 1 }, 5*time.Second, 100*time.Millisecond)
}
