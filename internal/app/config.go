package app

import (
	"os"
	"time"

	"github.com/vladislavdragonenkov/bookflow/internal/service/workflow"
)

// Config описывает настройки запуска сервиса. Все значения читаются из
// окружения с префиксом BOOKFLOW_; пустые внешние зависимости переводят
// соответствующую подсистему в in-memory или отключённый режим.
type Config struct {
	// HTTPAddr — адрес публичного API.
	HTTPAddr string
	// MetricsAddr — адрес служебного сервера: /metrics, /healthz, /livez, /readyz.
	MetricsAddr string

	// PostgresDSN включает постоянное хранилище; пустой — in-memory.
	PostgresDSN string
	// RedisAddr включает распределённый lock заказов; пустой — process-locker.
	RedisAddr string
	// RedisPassword — пароль Redis, может быть пустым.
	RedisPassword string
	// KafkaBrokers включает публикацию событий и платёжный consumer;
	// пустой — outbox копится без публикации.
	KafkaBrokers string
	// KafkaConsumerGroup — группа платёжного consumer-а.
	KafkaConsumerGroup string

	// Delays — задержки автоматических переходов.
	Delays workflow.Delays

	// OutboxPollInterval — частота опроса transactional outbox.
	OutboxPollInterval time.Duration
	// IdempotencyCleanupInterval — частота очистки просроченных ключей.
	IdempotencyCleanupInterval time.Duration
	// ReconcileSchedule — cron-расписание сверки автопереходов.
	ReconcileSchedule string
}

// DefaultConfig возвращает конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                   ":8080",
		MetricsAddr:                ":9090",
		KafkaConsumerGroup:         "bookflow-payment-consumer",
		Delays:                     workflow.DefaultDelays(),
		OutboxPollInterval:         time.Second,
		IdempotencyCleanupInterval: 10 * time.Minute,
		ReconcileSchedule:          "@every 1m",
	}
}

// LoadConfigFromEnv читает конфигурацию из переменных окружения,
// недостающие значения берутся из DefaultConfig.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("BOOKFLOW_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("BOOKFLOW_METRICS_ADDR", cfg.MetricsAddr)
	cfg.PostgresDSN = envString("BOOKFLOW_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.RedisAddr = envString("BOOKFLOW_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envString("BOOKFLOW_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.KafkaBrokers = envString("BOOKFLOW_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaConsumerGroup = envString("BOOKFLOW_KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)

	cfg.Delays.PaymentConfirmation = envDuration("BOOKFLOW_DELAY_PAYMENT_CONFIRMATION", cfg.Delays.PaymentConfirmation)
	cfg.Delays.Packing = envDuration("BOOKFLOW_DELAY_PACKING", cfg.Delays.Packing)
	cfg.Delays.Delivery = envDuration("BOOKFLOW_DELAY_DELIVERY", cfg.Delays.Delivery)

	cfg.OutboxPollInterval = envDuration("BOOKFLOW_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.IdempotencyCleanupInterval = envDuration("BOOKFLOW_IDEMPOTENCY_CLEANUP_INTERVAL", cfg.IdempotencyCleanupInterval)
	cfg.ReconcileSchedule = envString("BOOKFLOW_RECONCILE_SCHEDULE", cfg.ReconcileSchedule)

	return cfg
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
