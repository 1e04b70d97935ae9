package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
	"github.com/vladislavdragonenkov/bookflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bookflow/internal/metrics"
)

// Delays задаёт задержки звеньев автоматической цепочки переходов.
type Delays struct {
	// PaymentConfirmation — PAID → CONFIRMED.
	PaymentConfirmation time.Duration
	// Packing — CONFIRMED → PACKING.
	Packing time.Duration
	// Delivery — SHIPPED → DELIVERED.
	Delivery time.Duration
}

// DefaultDelays возвращает задержки по умолчанию.
func DefaultDelays() Delays {
	return Delays{
		PaymentConfirmation: 15 * time.Second,
		Packing:             20 * time.Second,
		Delivery:            40 * time.Second,
	}
}

// ForSource возвращает задержку автоперехода из статуса from.
func (d Delays) ForSource(from domain.OrderStatus) time.Duration {
	switch from {
	case domain.OrderStatusPaid:
		return d.PaymentConfirmation
	case domain.OrderStatusConfirmed:
		return d.Packing
	case domain.OrderStatusShipped:
		return d.Delivery
	default:
		return 0
	}
}

// errStaleTimer помечает срабатывание таймера, пережившего свой переход.
var errStaleTimer = errors.New("stale auto transition timer")

// Engine — workflow жизненного цикла заказов: немедленные guarded-переходы
// по явным действиям и самораспространяющаяся цепочка отложенных
// автоматических переходов.
type Engine struct {
	orders        domain.OrderRepository
	notifications domain.NotificationRepository
	timeline      domain.TimelineRepository
	outbox        domain.OutboxRepository
	scheduler     domain.TransitionScheduler
	locker        domain.OrderLocker
	logger        *log.Entry
	metrics       *metrics.WorkflowMetrics
	delays        Delays

	// pending хранит отмену запланированного автоперехода по заказу.
	// Отмена — оптимизация: сработавший устаревший таймер всё равно
	// подавляется guard-проверкой исходного статуса.
	mu      sync.Mutex
	pending map[string]domain.CancelTransition
}

// Option настраивает Engine.
type Option func(*Engine)

// WithMetrics подключает метрики workflow.
func WithMetrics(m *metrics.WorkflowMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithDelays переопределяет задержки автопереходов.
func WithDelays(d Delays) Option {
	return func(e *Engine) {
		e.delays = d
	}
}

// NewEngine создаёт workflow-движок.
func NewEngine(
	orders domain.OrderRepository,
	notifications domain.NotificationRepository,
	timeline domain.TimelineRepository,
	outbox domain.OutboxRepository,
	scheduler domain.TransitionScheduler,
	locker domain.OrderLocker,
	logger *log.Entry,
	opts ...Option,
) *Engine {
	if logger == nil {
		logger = log.New().WithField("component", "workflow")
	}

	e := &Engine{
		orders:        orders,
		notifications: notifications,
		timeline:      timeline,
		outbox:        outbox,
		scheduler:     scheduler,
		locker:        locker,
		logger:        logger,
		delays:        DefaultDelays(),
		pending:       make(map[string]domain.CancelTransition),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateOrderParams описывает данные нового заказа.
type CreateOrderParams struct {
	CustomerID      string
	Currency        string
	PaymentMethod   domain.PaymentMethod
	ShippingAddress string
	Items           []CreateOrderItem
}

// CreateOrderItem — позиция нового заказа.
type CreateOrderItem struct {
	BookID     string
	Title      string
	Qty        int32
	PriceMinor int64
}

// CreateOrder оформляет новый заказ в статусе PENDING.
func (e *Engine) CreateOrder(ctx context.Context, params CreateOrderParams) (domain.Order, error) {
	now := e.scheduler.Now().UTC()

	order := domain.Order{
		ID:              uuid.NewString(),
		CustomerID:      params.CustomerID,
		Status:          domain.OrderStatusPending,
		Currency:        params.Currency,
		PaymentMethod:   params.PaymentMethod,
		ShippingAddress: params.ShippingAddress,
		Version:         0,
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusEnteredAt: now,
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = domain.PaymentMethodCard
	}

	var total int64
	for _, item := range params.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:         uuid.NewString(),
			BookID:     item.BookID,
			Title:      item.Title,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
			CreatedAt:  now,
		})
		total += int64(item.Qty) * item.PriceMinor
	}
	order.AmountMinor = total

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errs[0]
	}

	if err := e.orders.Create(order); err != nil {
		return domain.Order{}, err
	}

	e.recordTimeline(order.ID, "order_created", "", order.Status, domain.TriggerCustomer, "")
	e.emitOrderEvent(order, "", order.Status, domain.TriggerCustomer, "")

	e.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
	}).Info("order created")

	return order, nil
}

// GetOrder возвращает заказ по идентификатору.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return e.orders.Get(orderID)
}

// ListOrders возвращает заказы клиента.
func (e *Engine) ListOrders(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	return e.orders.ListByCustomer(customerID, limit)
}

// OrderTimeline возвращает историю событий заказа.
func (e *Engine) OrderTimeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := e.orders.Get(orderID); err != nil {
		return nil, err
	}
	return e.timeline.List(orderID)
}

// ProcessPayment фиксирует capture платежа: PENDING → PAID.
func (e *Engine) ProcessPayment(ctx context.Context, orderID string) (domain.Order, error) {
	return e.applyTransition(ctx, orderID, "process_payment", domain.TriggerExternal, "",
		func(order domain.Order) (domain.OrderStatus, error) {
			if order.Status != domain.OrderStatusPending {
				return "", domain.ErrPaymentNotPending
			}
			return domain.OrderStatusPaid, nil
		})
}

// ConfirmCODOrder подтверждает заказ с оплатой при получении: PENDING → CONFIRMED.
func (e *Engine) ConfirmCODOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return e.applyTransition(ctx, orderID, "confirm_cod", domain.TriggerAdmin, "",
		func(order domain.Order) (domain.OrderStatus, error) {
			if order.Status != domain.OrderStatusPending {
				return "", domain.ErrConfirmNotPending
			}
			return domain.OrderStatusConfirmed, nil
		})
}

// ShipOrder отгружает скомплектованный заказ: PACKING → SHIPPED.
func (e *Engine) ShipOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return e.applyTransition(ctx, orderID, "ship", domain.TriggerAdmin, "",
		func(order domain.Order) (domain.OrderStatus, error) {
			if order.Status != domain.OrderStatusPacking {
				return "", domain.ErrShipNotPacking
			}
			return domain.OrderStatusShipped, nil
		})
}

// CustomerCancelOrder отменяет заказ по инициативе покупателя. Разрешено
// только до подтверждения оплаты.
func (e *Engine) CustomerCancelOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return e.applyTransition(ctx, orderID, "customer_cancel", domain.TriggerCustomer, "",
		func(order domain.Order) (domain.OrderStatus, error) {
			if err := customerCancelGuard(order.Status); err != nil {
				return "", err
			}
			return domain.OrderStatusCancelled, nil
		})
}

// AdminCancelOrder отменяет заказ оператором из любого незавершённого статуса.
func (e *Engine) AdminCancelOrder(ctx context.Context, orderID string, reason string) (domain.Order, error) {
	return e.applyTransition(ctx, orderID, "admin_cancel", domain.TriggerAdmin, reason,
		func(order domain.Order) (domain.OrderStatus, error) {
			if err := adminCancelGuard(order.Status); err != nil {
				return "", err
			}
			return domain.OrderStatusCancelled, nil
		})
}

// CustomerRequestReturn регистрирует запрос возврата вручённого заказа.
func (e *Engine) CustomerRequestReturn(ctx context.Context, orderID string, reason string) (domain.Order, error) {
	order, err := e.applyTransition(ctx, orderID, "request_return", domain.TriggerCustomer, reason,
		func(order domain.Order) (domain.OrderStatus, error) {
			if !domain.CanRequestReturn(order.Status) {
				return "", domain.ErrReturnNotDelivered
			}
			return domain.OrderStatusReturnRequested, nil
		})
	if err != nil {
		return domain.Order{}, err
	}

	message := "Покупатель запросил возврат заказа " + order.ID
	if reason != "" {
		message += ": " + reason
	}
	e.notify(order, domain.NotificationTypeReturnRequested, "Запрос на возврат", message)

	return order, nil
}

// ApproveReturn одобряет запрошенный возврат: RETURN_REQUESTED → RETURNED.
func (e *Engine) ApproveReturn(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := e.applyTransition(ctx, orderID, "approve_return", domain.TriggerAdmin, "",
		func(order domain.Order) (domain.OrderStatus, error) {
			if !domain.CanResolveReturn(order.Status) {
				return "", domain.ErrReturnNotRequested
			}
			return domain.OrderStatusReturned, nil
		})
	if err != nil {
		return domain.Order{}, err
	}

	e.notify(order, domain.NotificationTypeReturnApproved, "Возврат одобрен",
		"Возврат заказа "+order.ID+" одобрен оператором")

	return order, nil
}

// RejectReturn отклоняет запрошенный возврат: RETURN_REQUESTED → DELIVERED.
func (e *Engine) RejectReturn(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := e.applyTransition(ctx, orderID, "reject_return", domain.TriggerAdmin, "",
		func(order domain.Order) (domain.OrderStatus, error) {
			if !domain.CanResolveReturn(order.Status) {
				return "", domain.ErrReturnNotRequested
			}
			return domain.OrderStatusDelivered, nil
		})
	if err != nil {
		return domain.Order{}, err
	}

	e.notify(order, domain.NotificationTypeReturnRejected, "Возврат отклонён",
		"Возврат заказа "+order.ID+" отклонён оператором")

	return order, nil
}

// CustomerConfirmDelivery подтверждает получение заказа покупателем,
// опережая автоматический таймер SHIPPED → DELIVERED.
func (e *Engine) CustomerConfirmDelivery(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := e.applyTransition(ctx, orderID, "confirm_delivery", domain.TriggerCustomer, "",
		func(order domain.Order) (domain.OrderStatus, error) {
			if !domain.CanConfirmDelivery(order.Status) {
				return "", domain.ErrNotShipped
			}
			return domain.OrderStatusDelivered, nil
		})
	if err != nil {
		return domain.Order{}, err
	}

	e.notify(order, domain.NotificationTypeOrderDelivered, "Заказ доставлен",
		"Заказ "+order.ID+" вручён покупателю")

	return order, nil
}

// FailOrder помечает заказ как неуспешный после отказа платёжного провайдера.
func (e *Engine) FailOrder(ctx context.Context, orderID string, reason string) (domain.Order, error) {
	return e.applyTransition(ctx, orderID, "fail", domain.TriggerExternal, reason,
		func(order domain.Order) (domain.OrderStatus, error) {
			if order.Status != domain.OrderStatusPending {
				return "", domain.ErrFailNotPending
			}
			return domain.OrderStatusFailed, nil
		})
}

// ResumeAutoTransitions восстанавливает отложенные автопереходы после
// рестарта процесса. Для каждого заказа в статусе-источнике остаток
// задержки считается от сохранённого StatusEnteredAt; просроченные
// переходы срабатывают немедленно.
func (e *Engine) ResumeAutoTransitions(ctx context.Context) (int, error) {
	orders, err := e.orders.ListByStatus(
		domain.OrderStatusPaid,
		domain.OrderStatusConfirmed,
		domain.OrderStatusShipped,
	)
	if err != nil {
		return 0, err
	}

	now := e.scheduler.Now()
	resumed := 0
	for _, order := range orders {
		link, ok := domain.NextAutoTransition(order.Status)
		if !ok {
			continue
		}

		remaining := e.delays.ForSource(order.Status) - now.Sub(order.StatusEnteredAt)
		if remaining < 0 {
			remaining = 0
		}

		e.scheduleLink(order.ID, link, remaining)
		resumed++

		e.logger.WithFields(log.Fields{
			"order_id":  order.ID,
			"status":    order.Status,
			"remaining": remaining,
		}).Info("auto transition resumed")
	}

	return resumed, nil
}

// PendingTransitions возвращает количество запланированных автопереходов.
func (e *Engine) PendingTransitions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// applyTransition выполняет шаг «лок заказа → чтение → guard → запись» и
// побочные эффекты зафиксированного перехода: timeline, outbox, метрики,
// планирование следующего звена автоцепочки.
func (e *Engine) applyTransition(
	ctx context.Context,
	orderID string,
	operation string,
	trigger domain.TransitionTrigger,
	reason string,
	decide func(domain.Order) (domain.OrderStatus, error),
) (domain.Order, error) {
	started := time.Now()

	release, err := e.locker.Lock(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer release()

	order, from, err := e.commitStatus(orderID, operation, decide)
	if err != nil {
		return domain.Order{}, err
	}

	// Зафиксированный переход делает ранее запланированный таймер неактуальным.
	e.cancelPending(orderID)

	e.recordTimeline(orderID, "status_changed", from, order.Status, trigger, reason)
	e.emitOrderEvent(order, from, order.Status, trigger, reason)

	if e.metrics != nil {
		e.metrics.RecordTransition(string(from), string(order.Status), string(trigger), "committed")
		e.metrics.RecordTransitionDuration(time.Since(started))
	}

	e.logger.WithFields(log.Fields{
		"order_id": orderID,
		"from":     from,
		"to":       order.Status,
		"trigger":  trigger,
	}).Info("order transition committed")

	e.scheduleNext(order)

	return order, nil
}

// commitStatus записывает новый статус с optimistic locking и ограниченным
// числом повторов. При конфликте версий заказ перечитывается и guard
// выполняется заново на свежем статусе.
func (e *Engine) commitStatus(
	orderID string,
	operation string,
	decide func(domain.Order) (domain.OrderStatus, error),
) (domain.Order, domain.OrderStatus, error) {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		order, err := e.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, "", err
		}

		to, err := decide(order)
		if err != nil {
			if e.metrics != nil && domain.IsGuardRejection(err) {
				e.metrics.RecordGuardRejection(operation)
			}
			return domain.Order{}, "", err
		}

		from := order.Status
		now := e.scheduler.Now().UTC()
		order.Status = to
		order.StatusEnteredAt = now
		order.UpdatedAt = now

		if err := e.orders.Save(order); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxRetries-1 {
				e.logger.WithFields(log.Fields{
					"order_id": orderID,
					"attempt":  attempt + 1,
				}).Warn("version conflict, retrying transition")
				time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return domain.Order{}, "", err
		}

		order.Version++
		return order, from, nil
	}

	return domain.Order{}, "", domain.ErrOrderVersionConflict
}

// scheduleNext планирует следующее звено автоцепочки, если оно есть.
func (e *Engine) scheduleNext(order domain.Order) {
	link, ok := domain.NextAutoTransition(order.Status)
	if !ok {
		return
	}
	e.scheduleLink(order.ID, link, e.delays.ForSource(order.Status))
}

// scheduleLink регистрирует отложенный автопереход заказа.
func (e *Engine) scheduleLink(orderID string, link domain.AutoTransition, delay time.Duration) {
	e.mu.Lock()
	if cancel, ok := e.pending[orderID]; ok {
		cancel()
		if e.metrics != nil {
			e.metrics.RecordTransitionSettled()
		}
	}
	e.pending[orderID] = e.scheduler.After(delay, func() {
		e.mu.Lock()
		delete(e.pending, orderID)
		e.mu.Unlock()
		if e.metrics != nil {
			e.metrics.RecordTransitionSettled()
		}
		e.fireAutoTransition(orderID, link)
	})
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordTransitionScheduled()
	}

	e.logger.WithFields(log.Fields{
		"order_id": orderID,
		"from":     link.From,
		"to":       link.To,
		"delay":    delay,
	}).Debug("auto transition scheduled")
}

// fireAutoTransition выполняет отложенный переход. Устаревший таймер —
// заказ уже покинул ожидаемый исходный статус — подавляется молча:
// это штатное поведение, а не ошибка.
func (e *Engine) fireAutoTransition(orderID string, link domain.AutoTransition) {
	order, err := e.applyTransition(context.Background(), orderID, "auto_"+string(link.To), domain.TriggerAuto, "",
		func(order domain.Order) (domain.OrderStatus, error) {
			if order.Status != link.From {
				return "", errStaleTimer
			}
			return link.To, nil
		})
	if err != nil {
		if errors.Is(err, errStaleTimer) {
			if e.metrics != nil {
				e.metrics.RecordStaleTimer()
			}
			e.logger.WithFields(log.Fields{
				"order_id": orderID,
				"expected": link.From,
			}).Debug("stale timer suppressed")
			return
		}
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"from":     link.From,
			"to":       link.To,
		}).Error("auto transition failed")
		return
	}

	if order.Status == domain.OrderStatusDelivered {
		e.notify(order, domain.NotificationTypeOrderDelivered, "Заказ доставлен",
			"Заказ "+order.ID+" вручён покупателю")
	}
}

func (e *Engine) cancelPending(orderID string) {
	e.mu.Lock()
	cancel, ok := e.pending[orderID]
	if ok {
		delete(e.pending, orderID)
	}
	e.mu.Unlock()

	if ok {
		cancel()
		if e.metrics != nil {
			e.metrics.RecordTransitionSettled()
		}
	}
}

// notify создаёт уведомление для админ-панели и дублирует его в outbox.
func (e *Engine) notify(order domain.Order, notificationType domain.NotificationType, title, message string) {
	n := domain.Notification{
		ID:        uuid.NewString(),
		Type:      notificationType,
		Title:     title,
		Message:   message,
		OrderID:   order.ID,
		CreatedAt: e.scheduler.Now().UTC(),
	}

	if err := e.notifications.Append(n); err != nil {
		e.logger.WithError(err).WithField("order_id", order.ID).Error("append notification failed")
		return
	}
	if e.metrics != nil {
		e.metrics.RecordNotification(string(notificationType))
	}

	payload, err := json.Marshal(kafka.NewNotificationEvent(n))
	if err != nil {
		e.logger.WithError(err).WithField("order_id", order.ID).Error("marshal notification event failed")
		return
	}
	e.enqueueOutbox(domain.OutboxMessage{
		AggregateType: "notification",
		AggregateID:   n.ID,
		EventType:     string(kafka.EventTypeNotificationCreated),
		Payload:       payload,
	})
}

func (e *Engine) recordTimeline(orderID, eventType string, from, to domain.OrderStatus, trigger domain.TransitionTrigger, reason string) {
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		From:     from,
		To:       to,
		Trigger:  trigger,
		Reason:   reason,
		Occurred: e.scheduler.Now().UTC(),
	}
	if err := e.timeline.Append(event); err != nil {
		e.logger.WithError(err).WithField("order_id", orderID).Warn("append timeline event failed")
		return
	}
	if e.metrics != nil {
		e.metrics.RecordTimelineEvent()
	}
}

func (e *Engine) emitOrderEvent(order domain.Order, from, to domain.OrderStatus, trigger domain.TransitionTrigger, reason string) {
	event := kafka.NewOrderStatusEvent(order, from, to, trigger, reason)
	if from == "" {
		event.EventType = kafka.EventTypeOrderCreated
	}
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.WithError(err).WithField("order_id", order.ID).Error("marshal order event failed")
		return
	}
	e.enqueueOutbox(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     string(event.EventType),
		Payload:       payload,
	})
}

func (e *Engine) enqueueOutbox(msg domain.OutboxMessage) {
	if _, err := e.outbox.Enqueue(msg); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"aggregate_id": msg.AggregateID,
			"event":        msg.EventType,
		}).Error("enqueue outbox event failed")
		return
	}
	if e.metrics != nil {
		e.metrics.RecordOutboxEvent()
	}
}

func customerCancelGuard(status domain.OrderStatus) error {
	switch {
	case status == domain.OrderStatusPending:
		return nil
	case status == domain.OrderStatusCancelled || status == domain.OrderStatusReturned:
		return domain.ErrCancelFinished
	case status == domain.OrderStatusDelivered:
		return domain.ErrCancelDelivered
	default:
		return domain.ErrCancelConfirmed
	}
}

func adminCancelGuard(status domain.OrderStatus) error {
	switch status {
	case domain.OrderStatusDelivered:
		return domain.ErrCancelDelivered
	case domain.OrderStatusCancelled, domain.OrderStatusReturned:
		return domain.ErrCancelFinished
	default:
		return nil
	}
}
