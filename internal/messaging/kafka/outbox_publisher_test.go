package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
)

func newMockedProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()

	mockProducer := mocks.NewSyncProducer(t, nil)
	return &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-test"),
	}, mockProducer
}

func TestOutboxPublisher_RoutesOrderEvents(t *testing.T) {
	t.Parallel()

	producer, mockProducer := newMockedProducer(t)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			t.Fatalf("order event routed to %s", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "order-123" {
			t.Fatalf("unexpected partition key: %s", key)
		}

		value, _ := msg.Value.Encode()
		var envelope struct {
			ID        string          `json:"id"`
			EventType string          `json:"event_type"`
			Payload   json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(value, &envelope); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if envelope.ID != "outbox-1" || envelope.EventType != "order.status_changed" {
			t.Fatalf("unexpected envelope: %+v", envelope)
		}
		return nil
	})

	publisher := NewOutboxPublisher(producer)
	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     "order.status_changed",
		Payload:       []byte(`{"to_status":"CONFIRMED"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_RoutesNotificationEvents(t *testing.T) {
	t.Parallel()

	producer, mockProducer := newMockedProducer(t)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicNotificationEvents {
			t.Fatalf("notification event routed to %s", msg.Topic)
		}
		return nil
	})

	publisher := NewOutboxPublisher(producer)
	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: "notification",
		AggregateID:   "ntf-1",
		EventType:     "notification.created",
		Payload:       []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_UnknownAggregateUsesFallbackTopic(t *testing.T) {
	t.Parallel()

	producer, mockProducer := newMockedProducer(t)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			t.Fatalf("fallback topic expected, got %s", msg.Topic)
		}
		// Без AggregateID ключом становится ID сообщения.
		key, _ := msg.Key.Encode()
		if string(key) != "outbox-3" {
			t.Fatalf("unexpected key: %s", key)
		}
		return nil
	})

	publisher := NewOutboxPublisher(producer)
	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-3",
		AggregateType: "mystery",
		EventType:     "whatever",
		Payload:       []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDLQPublisher_SendsEverythingToDeadLetterQueue(t *testing.T) {
	t.Parallel()

	producer, mockProducer := newMockedProducer(t)
	for i := 0; i < 2; i++ {
		mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			if msg.Topic != TopicDeadLetterQueue {
				t.Fatalf("dlq publisher routed message to %s", msg.Topic)
			}
			return nil
		})
	}

	publisher := NewDLQPublisher(producer)
	messages := []domain.OutboxMessage{
		{ID: "outbox-6", AggregateType: "order", AggregateID: "order-6", EventType: "order.status_changed", Payload: []byte(`{}`)},
		{ID: "outbox-7", AggregateType: "notification", AggregateID: "ntf-7", EventType: "notification.created", Payload: []byte(`{}`)},
	}
	for _, message := range messages {
		if err := publisher.Publish(message); err != nil {
			t.Fatalf("publish %s failed: %v", message.ID, err)
		}
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_ProducerError(t *testing.T) {
	t.Parallel()

	producer, mockProducer := newMockedProducer(t)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(producer)
	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-4",
		AggregateType: "order",
		AggregateID:   "order-4",
		EventType:     "order.status_changed",
		Payload:       []byte(`{}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_NilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-5"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}
