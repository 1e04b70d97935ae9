package kafka

import (
	"time"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	// События жизненного цикла заказа
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeOrderCancelled     EventType = "order.cancelled"
	EventTypeOrderDelivered     EventType = "order.delivered"
	EventTypeOrderFailed        EventType = "order.failed"

	// События возвратов
	EventTypeReturnRequested EventType = "return.requested"
	EventTypeReturnApproved  EventType = "return.approved"
	EventTypeReturnRejected  EventType = "return.rejected"

	// События уведомлений админ-панели
	EventTypeNotificationCreated EventType = "notification.created"

	// Входящие события платёжного провайдера
	EventTypePaymentCaptured EventType = "payment.captured"
	EventTypePaymentDeclined EventType = "payment.declined"
)

// Topics для Kafka
const (
	TopicOrderEvents        = "bookflow.order.events"
	TopicNotificationEvents = "bookflow.notification.events"
	TopicPaymentEvents      = "bookflow.payment.events"
	TopicDeadLetterQueue    = "bookflow.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderStatusEvent описывает смену статуса заказа для внешних потребителей.
type OrderStatusEvent struct {
	EventType  EventType `json:"event_type"`
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Trigger    string    `json:"trigger"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NotificationEvent дублирует уведомление админ-панели в Kafka.
type NotificationEvent struct {
	EventType        EventType `json:"event_type"`
	NotificationID   string    `json:"notification_id"`
	NotificationType string    `json:"notification_type"`
	OrderID          string    `json:"order_id"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	Timestamp        time.Time `json:"timestamp"`
}

// PaymentEvent — входящее событие платёжного провайдера.
type PaymentEvent struct {
	EventType EventType `json:"event_type"`
	OrderID   string    `json:"order_id"`
	// PaymentID используется как idempotency key при обработке capture.
	PaymentID string    `json:"payment_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOrderStatusEvent создаёт событие смены статуса по данным перехода.
func NewOrderStatusEvent(order domain.Order, from, to domain.OrderStatus, trigger domain.TransitionTrigger, reason string) *OrderStatusEvent {
	eventType := EventTypeOrderStatusChanged
	switch to {
	case domain.OrderStatusCancelled:
		eventType = EventTypeOrderCancelled
	case domain.OrderStatusDelivered:
		eventType = EventTypeOrderDelivered
	case domain.OrderStatusFailed:
		eventType = EventTypeOrderFailed
	case domain.OrderStatusReturnRequested:
		eventType = EventTypeReturnRequested
	case domain.OrderStatusReturned:
		eventType = EventTypeReturnApproved
	}

	return &OrderStatusEvent{
		EventType:  eventType,
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		FromStatus: string(from),
		ToStatus:   string(to),
		Trigger:    string(trigger),
		Reason:     reason,
		Timestamp:  time.Now().UTC(),
	}
}

// NewNotificationEvent создаёт событие по уведомлению админ-панели.
func NewNotificationEvent(n domain.Notification) *NotificationEvent {
	return &NotificationEvent{
		EventType:        EventTypeNotificationCreated,
		NotificationID:   n.ID,
		NotificationType: string(n.Type),
		OrderID:          n.OrderID,
		Title:            n.Title,
		Message:          n.Message,
		Timestamp:        time.Now().UTC(),
	}
}
