package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookflow/internal/messaging/kafka"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	m.Run()
}

type fakeOffsetClient struct {
	partitions map[string][]int32
	oldest     map[string]int64
	newest     map[string]int64
	closed     bool
}

func offsetKey(topic string, partition int32) string {
	return fmt.Sprintf("%s/%d", topic, partition)
}

func (f *fakeOffsetClient) GetOffset(topic string, partition int32, at int64) (int64, error) {
	key := offsetKey(topic, partition)
	if at == sarama.OffsetOldest {
		return f.oldest[key], nil
	}
	return f.newest[key], nil
}

func (f *fakeOffsetClient) Partitions(topic string) ([]int32, error) {
	return f.partitions[topic], nil
}

func (f *fakeOffsetClient) Close() error {
	f.closed = true
	return nil
}

type fakePartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (f *fakePartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return f.messages }
func (f *fakePartitionConsumer) Errors() <-chan *sarama.ConsumerError    { return f.errors }
func (f *fakePartitionConsumer) Close() error                            { return nil }

type fakeConsumerSource struct {
	byPartition map[int32][]*sarama.ConsumerMessage
	closed      bool
}

func (f *fakeConsumerSource) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	msgs := f.byPartition[partition]
	pc := &fakePartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage, len(msgs)+1),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	for _, msg := range msgs {
		if msg.Offset >= offset {
			pc.messages <- msg
		}
	}
	return pc, nil
}

func (f *fakeConsumerSource) Close() error {
	f.closed = true
	return nil
}

type fakeReplayProducer struct {
	sent   []*sarama.ProducerMessage
	closed bool
}

func (f *fakeReplayProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	f.sent = append(f.sent, msg)
	return 0, int64(len(f.sent)), nil
}

func (f *fakeReplayProducer) Close() error {
	f.closed = true
	return nil
}

func dlqMessage(t *testing.T, offset int64, payload any) *sarama.ConsumerMessage {
	t.Helper()

	value, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal dlq payload: %v", err)
	}
	return &sarama.ConsumerMessage{
		Topic:  kafka.TopicDeadLetterQueue,
		Offset: offset,
		Value:  value,
	}
}

func consumerDLQMessage(t *testing.T, offset int64, originalTopic string) *sarama.ConsumerMessage {
	t.Helper()
	return dlqMessage(t, offset, map[string]any{
		"original_topic": originalTopic,
		"original_key":   "order-1",
		"original_value": `{"event_type":"payment.captured","order_id":"order-1"}`,
		"error_message":  "handler failed",
	})
}

func outboxDLQMessage(t *testing.T, offset int64, aggregateType string) *sarama.ConsumerMessage {
	t.Helper()

	inner, err := json.Marshal(map[string]any{
		"outbox_id":      "outbox-42",
		"aggregate_type": aggregateType,
		"aggregate_id":   "order-42",
		"event_type":     "order.status_changed",
		"payload":        json.RawMessage(`{"order_id":"order-42","to_status":"PAID"}`),
		"publish_error":  "broker unavailable",
	})
	if err != nil {
		t.Fatalf("marshal outbox dlq payload: %v", err)
	}

	return dlqMessage(t, offset, map[string]any{
		"id":             "dlq-envelope-1",
		"aggregate_type": aggregateType,
		"aggregate_id":   "order-42",
		"event_type":     "order.status_changed",
		"payload":        json.RawMessage(inner),
		"published_at":   time.Now().UTC().Format(time.RFC3339),
	})
}

func testConfig(execute bool) replayConfig {
	return replayConfig{
		brokers:     []string{"localhost:9092"},
		sourceTopic: kafka.TopicDeadLetterQueue,
		targetTopic: kafka.TopicOrderEvents,
		limit:       defaultScanLimit,
		execute:     execute,
		idleTimeout: 100 * time.Millisecond,
	}
}

func newFakes(messages []*sarama.ConsumerMessage) (*fakeOffsetClient, *fakeConsumerSource) {
	client := &fakeOffsetClient{
		partitions: map[string][]int32{kafka.TopicDeadLetterQueue: {0}},
		oldest:     map[string]int64{offsetKey(kafka.TopicDeadLetterQueue, 0): 0},
		newest:     map[string]int64{offsetKey(kafka.TopicDeadLetterQueue, 0): int64(len(messages))},
	}
	source := &fakeConsumerSource{byPartition: map[int32][]*sarama.ConsumerMessage{0: messages}}
	return client, source
}

func TestReplayer_DryRunCountsCandidates(t *testing.T) {
	messages := []*sarama.ConsumerMessage{
		consumerDLQMessage(t, 0, kafka.TopicPaymentEvents),
		outboxDLQMessage(t, 1, "order"),
		dlqMessage(t, 2, map[string]any{"unrelated": true}),
	}
	client, source := newFakes(messages)

	r := &replayer{cfg: testConfig(false), client: client, consumer: source}
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if r.processed != 3 || r.replayed != 2 || r.skipped != 1 {
		t.Fatalf("unexpected stats: processed=%d replayed=%d skipped=%d", r.processed, r.replayed, r.skipped)
	}
}

func TestReplayer_ExecutePublishesToOriginalTopic(t *testing.T) {
	messages := []*sarama.ConsumerMessage{consumerDLQMessage(t, 0, kafka.TopicPaymentEvents)}
	client, source := newFakes(messages)
	producer := &fakeReplayProducer{}

	r := &replayer{cfg: testConfig(true), client: client, consumer: source, producer: producer}
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(producer.sent) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(producer.sent))
	}
	sent := producer.sent[0]
	if sent.Topic != kafka.TopicPaymentEvents {
		t.Fatalf("expected replay to original topic, got %s", sent.Topic)
	}
	key, _ := sent.Key.Encode()
	if string(key) != "order-1" {
		t.Fatalf("expected original key, got %s", key)
	}
	value, _ := sent.Value.Encode()
	event, err := kafka.ParsePaymentEvent(&sarama.ConsumerMessage{Value: value})
	if err != nil {
		t.Fatalf("replayed value is not the original payment event: %v", err)
	}
	if event.OrderID != "order-1" {
		t.Fatalf("unexpected order id: %s", event.OrderID)
	}
}

func TestReplayer_ExecuteReenvelopesOutboxRecords(t *testing.T) {
	messages := []*sarama.ConsumerMessage{
		outboxDLQMessage(t, 0, "order"),
		outboxDLQMessage(t, 1, "notification"),
	}
	client, source := newFakes(messages)
	producer := &fakeReplayProducer{}

	r := &replayer{cfg: testConfig(true), client: client, consumer: source, producer: producer}
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(producer.sent) != 2 {
		t.Fatalf("expected 2 published messages, got %d", len(producer.sent))
	}
	if producer.sent[0].Topic != kafka.TopicOrderEvents {
		t.Fatalf("order record should go to order topic, got %s", producer.sent[0].Topic)
	}
	if producer.sent[1].Topic != kafka.TopicNotificationEvents {
		t.Fatalf("notification record should go to notification topic, got %s", producer.sent[1].Topic)
	}

	value, _ := producer.sent[0].Value.Encode()
	var envelope publisherEnvelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		t.Fatalf("unmarshal replay envelope: %v", err)
	}
	if envelope.ID != "outbox-42" {
		t.Fatalf("replay should keep the original outbox id, got %s", envelope.ID)
	}
	if envelope.EventType != "order.status_changed" {
		t.Fatalf("unexpected event type: %s", envelope.EventType)
	}
	var payload map[string]any
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		t.Fatalf("unmarshal replay payload: %v", err)
	}
	if payload["order_id"] != "order-42" {
		t.Fatalf("replay payload lost the original event: %v", payload)
	}
}

func TestReplayer_RespectsScanLimit(t *testing.T) {
	messages := make([]*sarama.ConsumerMessage, 0, 5)
	for i := int64(0); i < 5; i++ {
		messages = append(messages, consumerDLQMessage(t, i, kafka.TopicPaymentEvents))
	}
	client, source := newFakes(messages)

	cfg := testConfig(false)
	cfg.limit = 2

	r := &replayer{cfg: cfg, client: client, consumer: source}
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if r.processed != 2 {
		t.Fatalf("expected scan limit to cap processing at 2, got %d", r.processed)
	}
}

func TestReplayer_ExecuteRequiresProducer(t *testing.T) {
	client, source := newFakes(nil)

	r := &replayer{cfg: testConfig(true), client: client, consumer: source}
	if err := r.run(context.Background()); err == nil {
		t.Fatal("expected error without producer in execute mode")
	}
}

func TestRun_UsesInjectedDependencies(t *testing.T) {
	client, source := newFakes([]*sarama.ConsumerMessage{consumerDLQMessage(t, 0, "")})
	producer := &fakeReplayProducer{}

	original := newReplayDependencies
	newReplayDependencies = func(replayConfig) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, source, producer, nil
	}
	defer func() { newReplayDependencies = original }()

	cfg := testConfig(true)
	if err := run(context.Background(), cfg); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(producer.sent) != 1 {
		t.Fatalf("expected 1 replayed message, got %d", len(producer.sent))
	}
	// Пустой original_topic заменяется на target-topic.
	if producer.sent[0].Topic != kafka.TopicOrderEvents {
		t.Fatalf("expected fallback topic, got %s", producer.sent[0].Topic)
	}
	if !client.closed || !source.closed || !producer.closed {
		t.Fatal("run must close injected dependencies")
	}
}
