package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
	"github.com/vladislavdragonenkov/bookflow/internal/locker"
	"github.com/vladislavdragonenkov/bookflow/internal/storage/memory"
	"github.com/vladislavdragonenkov/bookflow/internal/storage/postgres"
)

// Dependencies собирает хранилища и инфраструктуру приложения.
type Dependencies struct {
	Orders        domain.OrderRepository
	Notifications domain.NotificationRepository
	Timeline      domain.TimelineRepository
	Outbox        domain.OutboxRepository
	Idempotency   domain.IdempotencyRepository
	Locker        domain.OrderLocker

	store       *postgres.Store
	redisClient *redis.Client
	logger      *log.Entry
}

// NewDependencies создаёт зависимости по конфигурации: Postgres при
// заданном DSN, иначе in-memory; Redis-lock при заданном адресе, иначе
// блокировки внутри процесса.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{logger: logger}

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}

		deps.store = store
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Notifications = postgres.NewNotificationRepository(store)
		deps.Timeline = postgres.NewTimelineRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Idempotency = postgres.NewIdempotencyRepository(store)
		logger.Info("postgres storage initialized")
	} else {
		deps.Orders = memory.NewOrderRepository()
		deps.Notifications = memory.NewNotificationRepository()
		deps.Timeline = memory.NewTimelineRepository()
		deps.Outbox = memory.NewOutboxRepository()
		deps.Idempotency = memory.NewIdempotencyRepository()
		logger.Info("in-memory storage initialized")
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			deps.Close()
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}

		deps.redisClient = client
		deps.Locker = locker.NewRedis(client, logger.WithField("component", "redis-locker"))
		logger.Info("redis order locker initialized")
	} else {
		deps.Locker = locker.NewProcess()
	}

	return deps, nil
}

// PingStore проверяет доступность постоянного хранилища; in-memory
// хранилище всегда доступно.
func (d *Dependencies) PingStore(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	return d.store.Ping(ctx)
}

// PingRedis проверяет доступность Redis, если он настроен.
func (d *Dependencies) PingRedis(ctx context.Context) error {
	if d.redisClient == nil {
		return nil
	}
	return d.redisClient.Ping(ctx).Err()
}

// HasRedis сообщает, настроен ли распределённый lock.
func (d *Dependencies) HasRedis() bool {
	return d.redisClient != nil
}

// HasPersistentStore сообщает, использует ли сервис Postgres.
func (d *Dependencies) HasPersistentStore() bool {
	return d.store != nil
}

// Close освобождает внешние соединения.
func (d *Dependencies) Close() {
	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			d.logger.WithError(err).Warn("failed to close redis client")
		}
		d.redisClient = nil
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.WithError(err).Warn("failed to close postgres store")
		}
		d.store = nil
	}
}
