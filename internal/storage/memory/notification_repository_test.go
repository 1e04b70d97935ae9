package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
)

func TestNotificationRepository_AppendListMarkRead(t *testing.T) {
	t.Parallel()

	repo := NewNotificationRepository()
	now := time.Now().UTC()

	if err := repo.Append(domain.Notification{
		ID:        "ntf-1",
		Type:      domain.NotificationTypeReturnRequested,
		Title:     "Запрос возврата",
		Message:   "Покупатель запросил возврат заказа order-1",
		OrderID:   "order-1",
		CreatedAt: now.Add(-time.Minute),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.Append(domain.Notification{
		ID:        "ntf-2",
		Type:      domain.NotificationTypeOrderDelivered,
		OrderID:   "order-2",
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	all, err := repo.List(false, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != "ntf-2" {
		t.Fatalf("unexpected list: %+v", all)
	}

	if err := repo.MarkRead("ntf-2"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	unread, err := repo.List(true, 0)
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread) != 1 || unread[0].ID != "ntf-1" {
		t.Fatalf("unexpected unread list: %+v", unread)
	}

	if err := repo.MarkRead("missing"); !errors.Is(err, domain.ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound, got %v", err)
	}
}

func TestNotificationRepository_AssignsID(t *testing.T) {
	t.Parallel()

	repo := NewNotificationRepository()
	if err := repo.Append(domain.Notification{Type: domain.NotificationTypeReturnApproved, OrderID: "order-1"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	list, err := repo.List(false, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID == "" {
		t.Fatalf("notification id was not assigned: %+v", list)
	}
}
