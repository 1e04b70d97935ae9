package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
)

// OutboxTopicPublisher раскладывает outbox-сообщения по topic-ам в зависимости
// от типа агрегата: события заказов и уведомления идут в разные topic-и.
type OutboxTopicPublisher struct {
	producer *Producer
	topics   map[string]string
	fallback string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer) domain.OutboxPublisher {
	return &OutboxTopicPublisher{
		producer: producer,
		topics: map[string]string{
			"order":        TopicOrderEvents,
			"notification": TopicNotificationEvents,
		},
		fallback: TopicOrderEvents,
	}
}

// NewDLQPublisher создаёт паблишер, направляющий все сообщения в dead
// letter queue независимо от типа агрегата. Используется outbox worker-ом
// для событий, исчерпавших попытки публикации.
func NewDLQPublisher(producer *Producer) domain.OutboxPublisher {
	return &OutboxTopicPublisher{
		producer: producer,
		topics:   map[string]string{},
		fallback: TopicDeadLetterQueue,
	}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	topic, ok := p.topics[event.AggregateType]
	if !ok {
		topic = p.fallback
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	envelope := struct {
		ID            string          `json:"id"`
		AggregateType string          `json:"aggregate_type"`
		AggregateID   string          `json:"aggregate_id"`
		EventType     string          `json:"event_type"`
		Payload       json.RawMessage `json:"payload"`
		PublishedAt   time.Time       `json:"published_at"`
	}{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	}

	return p.producer.PublishEvent(topic, key, envelope)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
