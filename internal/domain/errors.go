package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка при некорректном количестве экземпляров (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка статуса вне закрытого множества значений.
	ErrStatusUnknown = errors.New("order status is not a known value")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	// Отсутствующий заказ — это ошибка для вызывающего, а не тихий no-op.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")

	// Ошибки guard-проверок workflow. Текст каждой показывается пользователю
	// как объяснение, почему действие недоступно в текущем статусе заказа.

	// ErrPaymentNotPending — capture платежа пришёл не в статусе PENDING.
	ErrPaymentNotPending = errors.New("payment can only be captured for a pending order")
	// ErrConfirmNotPending — COD-подтверждение возможно только из PENDING.
	ErrConfirmNotPending = errors.New("only a pending order can be confirmed for cash on delivery")
	// ErrShipNotPacking — отгрузить можно только скомплектованный заказ.
	ErrShipNotPacking = errors.New("only a packed order can be shipped")
	// ErrCancelConfirmed — покупатель не может отменить подтверждённый заказ.
	ErrCancelConfirmed = errors.New("cannot cancel a confirmed order")
	// ErrCancelDelivered — оператор не может отменить вручённый заказ.
	ErrCancelDelivered = errors.New("cannot cancel a delivered order")
	// ErrCancelFinished — заказ уже отменён или возвращён.
	ErrCancelFinished = errors.New("order is already cancelled or returned")
	// ErrReturnNotDelivered — возврат доступен только для вручённого заказа.
	ErrReturnNotDelivered = errors.New("can only return a delivered order")
	// ErrReturnNotRequested — одобрить/отклонить можно только запрошенный возврат.
	ErrReturnNotRequested = errors.New("no pending return request for this order")
	// ErrNotShipped — подтвердить получение можно только отправленного заказа.
	ErrNotShipped = errors.New("order not yet shipped")
	// ErrFailNotPending — пометить заказ как failed можно только из PENDING.
	ErrFailNotPending = errors.New("only a pending order can be marked as failed")

	// ErrNotificationNotFound возвращается, если уведомление не найдено.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrLockNotAcquired — не удалось захватить блокировку заказа за отведённые попытки.
	ErrLockNotAcquired = errors.New("order lock not acquired")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound — ключ не найден.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyHashMismatch — тот же ключ пришёл с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsGuardRejection сообщает, что ошибка относится к guard-отказам workflow:
// состояние заказа не изменилось, пользователю показывается текст ошибки.
func IsGuardRejection(err error) bool {
	for _, guard := range []error{
		ErrPaymentNotPending, ErrConfirmNotPending, ErrShipNotPacking,
		ErrCancelConfirmed, ErrCancelDelivered, ErrCancelFinished,
		ErrReturnNotDelivered, ErrReturnNotRequested, ErrNotShipped,
		ErrFailNotPending,
	} {
		if errors.Is(err, guard) {
			return true
		}
	}
	return false
}
