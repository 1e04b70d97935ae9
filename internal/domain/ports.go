package domain

import (
	"context"
	"time"
)

// CancelTransition отменяет ещё не сработавший отложенный переход.
// Повторный вызов безопасен.
type CancelTransition func()

// TransitionScheduler планирует отложенный вызов callback через delay.
// Продакшн-реализация использует таймеры, тестовая — виртуальные часы,
// чтобы не спать в тестах реальное время.
type TransitionScheduler interface {
	// After вызывает fn по истечении delay. delay <= 0 означает
	// "выполнить немедленно" (просроченный при рестарте переход).
	After(delay time.Duration, fn func()) CancelTransition
	// Now возвращает текущее время планировщика.
	Now() time.Time
}

// OrderLocker сериализует шаг «прочитать статус, проверить guard, записать
// новый статус» по идентификатору заказа. В одном процессе достаточно
// keyed-мьютексов; при нескольких репликах — распределённый лок.
type OrderLocker interface {
	// Lock захватывает блокировку заказа и возвращает функцию освобождения.
	Lock(ctx context.Context, orderID string) (func(), error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
