package domain

import "time"

// OrderStatus описывает жизненный цикл заказа книжного магазина.
type OrderStatus string

const (
	// OrderStatusPending — заказ оформлен на кассе, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusPaid — оплата подтверждена платёжным провайдером.
	OrderStatusPaid OrderStatus = "PAID"
	// OrderStatusProcessing — заказ взят в обработку бэк-офисом.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusConfirmed — заказ подтверждён и ждёт комплектации.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusPacking — заказ комплектуется на складе.
	OrderStatusPacking OrderStatus = "PACKING"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered — заказ вручён покупателю.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelRequested — покупатель запросил отмену, решение за оператором.
	OrderStatusCancelRequested OrderStatus = "CANCEL_REQUESTED"
	// OrderStatusCancelled — заказ отменён до вручения.
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusReturnRequested — покупатель запросил возврат вручённого заказа.
	OrderStatusReturnRequested OrderStatus = "RETURN_REQUESTED"
	// OrderStatusReturned — возврат одобрен, заказ принят обратно.
	OrderStatusReturned OrderStatus = "RETURNED"
	// OrderStatusFailed — оплата не прошла, заказ завершён с ошибкой.
	OrderStatusFailed OrderStatus = "FAILED"
)

// Valid проверяет, что статус входит в закрытое множество значений.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusProcessing,
		OrderStatusConfirmed, OrderStatusPacking, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelRequested, OrderStatusCancelled,
		OrderStatusReturnRequested, OrderStatusReturned, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// PaymentMethod описывает способ оплаты заказа.
type PaymentMethod string

const (
	// PaymentMethodCard — онлайн-оплата картой, подтверждается внешним capture-событием.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodCOD — оплата при получении; шаг PAID пропускается.
	PaymentMethodCOD PaymentMethod = "cod"
)

// OrderItem представляет одну позицию заказа (книгу).
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// BookID — идентификатор книги в каталоге.
	BookID string
	// Title — название книги на момент оформления заказа.
	Title string
	// Qty — количество экземпляров.
	Qty int32
	// PriceMinor — цена за экземпляр в минимальных денежных единицах.
	PriceMinor int64
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// Order агрегирует состояние заказа и его позиции.
// Workflow — единственный владелец всех записей в поле Status.
type Order struct {
	ID              string
	CustomerID      string
	Status          OrderStatus
	Currency        string
	AmountMinor     int64
	PaymentMethod   PaymentMethod
	ShippingAddress string
	Items           []OrderItem
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	// StatusEnteredAt — момент входа в текущий статус. От него считается
	// остаток задержки при возобновлении автоматических переходов после рестарта.
	StatusEnteredAt time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusUnknown)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if calc != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
