package domain

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByCustomer возвращает заказы клиента с опциональным ограничением на количество.
	ListByCustomer(customerID string, limit int) ([]Order, error)
	// ListByStatus возвращает все заказы в заданных статусах. Используется
	// при возобновлении автоматических переходов после рестарта.
	ListByStatus(statuses ...OrderStatus) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// NotificationRepository хранит уведомления для админ-панели.
type NotificationRepository interface {
	// Append сохраняет новое уведомление.
	Append(n Notification) error
	// List возвращает уведомления, новые раньше старых. unreadOnly
	// ограничивает выборку непрочитанными.
	List(unreadOnly bool, limit int) ([]Notification, error)
	// MarkRead помечает уведомление прочитанным или возвращает
	// ErrNotificationNotFound.
	MarkRead(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}
