package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
)

const (
	defaultLockTTL       = 5 * time.Second
	defaultRetryInterval = 50 * time.Millisecond
	defaultMaxRetries    = 50
)

// Redis — распределённый OrderLocker на SET NX с TTL. Нужен, когда сервис
// работает в нескольких репликах и переходы одного заказа могут прийти
// на разные инстансы.
type Redis struct {
	client        *redis.Client
	logger        *log.Entry
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

// RedisOption настраивает Redis locker.
type RedisOption func(*Redis)

// WithTTL задаёт время жизни блокировки.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRetry задаёт интервал и число попыток захвата.
func WithRetry(interval time.Duration, maxRetries int) RedisOption {
	return func(r *Redis) {
		if interval > 0 {
			r.retryInterval = interval
		}
		if maxRetries > 0 {
			r.maxRetries = maxRetries
		}
	}
}

// NewRedis создаёт locker поверх готового клиента Redis.
func NewRedis(client *redis.Client, logger *log.Entry, options ...RedisOption) *Redis {
	if logger == nil {
		logger = log.WithField("component", "redis-locker")
	}
	r := &Redis{
		client:        client,
		logger:        logger,
		ttl:           defaultLockTTL,
		retryInterval: defaultRetryInterval,
		maxRetries:    defaultMaxRetries,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Lock захватывает ключ order_lock:<id>. Значение — уникальный токен
// владельца: чужую блокировку, пережившую TTL, снять нельзя.
func (r *Redis) Lock(ctx context.Context, orderID string) (func(), error) {
	key := fmt.Sprintf("order_lock:%s", orderID)
	token := uuid.NewString()

	acquired := false
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock error: %w", err)
		}
		if ok {
			acquired = true
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryInterval):
		}
	}
	if !acquired {
		return nil, domain.ErrLockNotAcquired
	}

	release := func() {
		// DEL только при совпадении токена владельца.
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		if err := r.client.Eval(context.Background(), script, []string{key}, token).Err(); err != nil {
			r.logger.WithError(err).WithField("order_id", orderID).Warn("failed to release order lock")
		}
	}
	return release, nil
}

var _ domain.OrderLocker = (*Redis)(nil)
