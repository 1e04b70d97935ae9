package memory

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
)

// notificationRepositoryInMemory хранит уведомления в памяти (для разработки/тестов).
type notificationRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Notification
}

// NewNotificationRepository создаёт in-memory реализацию NotificationRepository.
func NewNotificationRepository() domain.NotificationRepository {
	return &notificationRepositoryInMemory{items: make(map[string]domain.Notification)}
}

// Append сохраняет уведомление, присваивая ID при необходимости.
func (r *notificationRepositoryInMemory) Append(n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	r.items[n.ID] = n
	return nil
}

// List возвращает уведомления от новых к старым.
func (r *notificationRepositoryInMemory) List(unreadOnly bool, limit int) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Notification, 0, len(r.items))
	for _, n := range r.items {
		if unreadOnly && n.IsRead {
			continue
		}
		result = append(result, n)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkRead помечает уведомление прочитанным.
func (r *notificationRepositoryInMemory) MarkRead(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[id]
	if !ok {
		return domain.ErrNotificationNotFound
	}
	n.IsRead = true
	r.items[id] = n
	return nil
}

var _ domain.NotificationRepository = (*notificationRepositoryInMemory)(nil)
