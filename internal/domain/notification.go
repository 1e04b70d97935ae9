package domain

import "time"

// NotificationType определяет категорию уведомления для админ-панели.
type NotificationType string

const (
	// NotificationTypeReturnRequested — покупатель запросил возврат заказа.
	NotificationTypeReturnRequested NotificationType = "return_requested"
	// NotificationTypeReturnApproved — оператор одобрил возврат.
	NotificationTypeReturnApproved NotificationType = "return_approved"
	// NotificationTypeReturnRejected — оператор отклонил возврат.
	NotificationTypeReturnRejected NotificationType = "return_rejected"
	// NotificationTypeOrderDelivered — заказ вручён покупателю.
	NotificationTypeOrderDelivered NotificationType = "order_delivered"
)

// Notification — запись-сайд-эффект отдельных переходов workflow,
// потребляется внешним отображением уведомлений.
type Notification struct {
	ID        string
	Type      NotificationType
	Title     string
	Message   string
	OrderID   string
	IsRead    bool
	CreatedAt time.Time
}
