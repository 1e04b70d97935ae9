package domain

// TransitionTrigger описывает источник перехода для логов и метрик.
type TransitionTrigger string

const (
	// TriggerExternal — переход вызван внешним событием (capture платежа).
	TriggerExternal TransitionTrigger = "external"
	// TriggerCustomer — переход вызван действием покупателя.
	TriggerCustomer TransitionTrigger = "customer"
	// TriggerAdmin — переход вызван действием оператора.
	TriggerAdmin TransitionTrigger = "admin"
	// TriggerAuto — отложенный автоматический переход.
	TriggerAuto TransitionTrigger = "auto"
)

// AutoTransition описывает одно звено цепочки автоматических переходов.
type AutoTransition struct {
	From OrderStatus
	To   OrderStatus
}

// autoChain задаёт самораспространяющуюся цепочку отложенных переходов:
// коммит очередного звена планирует следующее.
// PACKING → SHIPPED в цепочку не входит: отгрузку подтверждает оператор.
var autoChain = map[OrderStatus]OrderStatus{
	OrderStatusPaid:      OrderStatusConfirmed,
	OrderStatusConfirmed: OrderStatusPacking,
	OrderStatusShipped:   OrderStatusDelivered,
}

// NextAutoTransition возвращает автоматический переход из статуса status,
// если таковой предусмотрен таблицей переходов.
func NextAutoTransition(status OrderStatus) (AutoTransition, bool) {
	to, ok := autoChain[status]
	if !ok {
		return AutoTransition{}, false
	}
	return AutoTransition{From: status, To: to}, true
}

// HasAutoSuccessor сообщает, запланирован ли для статуса отложенный преемник.
func HasAutoSuccessor(status OrderStatus) bool {
	_, ok := autoChain[status]
	return ok
}

// IsTerminal сообщает, что из статуса нет дальнейших автоматических переходов
// и единственный выход — явное действие (для DELIVERED это запрос возврата).
func IsTerminal(status OrderStatus) bool {
	switch status {
	case OrderStatusCancelled, OrderStatusReturned, OrderStatusFailed, OrderStatusDelivered:
		return true
	default:
		return false
	}
}

// CanCustomerCancel разрешает отмену покупателем только до подтверждения оплаты.
func CanCustomerCancel(status OrderStatus) bool {
	return status == OrderStatusPending
}

// CanAdminCancel разрешает операторскую отмену из любого статуса,
// кроме уже завершённых: вручённый, отменённый или возвращённый заказ
// отменить нельзя.
func CanAdminCancel(status OrderStatus) bool {
	switch status {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned:
		return false
	default:
		return true
	}
}

// CanRequestReturn разрешает запрос возврата только для вручённого заказа.
func CanRequestReturn(status OrderStatus) bool {
	return status == OrderStatusDelivered
}

// CanResolveReturn разрешает одобрение/отклонение возврата только из RETURN_REQUESTED.
func CanResolveReturn(status OrderStatus) bool {
	return status == OrderStatusReturnRequested
}

// CanConfirmDelivery разрешает подтверждение получения только для отправленного заказа.
func CanConfirmDelivery(status OrderStatus) bool {
	return status == OrderStatusShipped
}
