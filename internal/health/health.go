package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
)

// Status — состояние компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check — результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — агрегированный ответ health endpoint.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker выполняет проверку здоровья компонента.
type Checker interface {
	Check() Check
}

// Handler отдаёт агрегированное состояние сервиса.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	startTime time.Time
}

// NewHandler создаёт health handler.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		startTime: time.Now(),
	}
}

// RegisterChecker регистрирует проверку компонента.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

func (h *Handler) snapshot() map[string]Checker {
	h.mu.RLock()
	defer h.mu.RUnlock()

	checkers := make(map[string]Checker, len(h.checkers))
	for name, checker := range h.checkers {
		checkers[name] = checker
	}
	return checkers
}

// ServeHTTP выполняет все проверки и агрегирует их статус:
// любой unhealthy делает сервис unhealthy, degraded понижает healthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	checks := make(map[string]Check)
	overall := StatusHealthy

	for name, checker := range h.snapshot() {
		check := checker.Check()
		checks[name] = check

		if check.Status == StatusUnhealthy {
			overall = StatusUnhealthy
		} else if check.Status == StatusDegraded && overall == StatusHealthy {
			overall = StatusDegraded
		}
	}

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Response{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

// LivenessHandler — liveness probe, всегда 200.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler возвращает 503, пока хотя бы один компонент unhealthy.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	for _, checker := range h.snapshot() {
		if checker.Check().Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// PingChecker проверяет внешнюю зависимость ping-функцией с таймаутом.
// Используется для Postgres и Redis.
type PingChecker struct {
	name    string
	timeout time.Duration
	ping    func(ctx context.Context) error
}

// NewPingChecker создаёт проверку внешней зависимости.
func NewPingChecker(name string, timeout time.Duration, ping func(ctx context.Context) error) *PingChecker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PingChecker{name: name, timeout: timeout, ping: ping}
}

// Check выполняет ping.
func (c *PingChecker) Check() Check {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	err := c.ping(ctx)
	duration := time.Since(start)

	if err != nil {
		return Check{
			Name:       c.name,
			Status:     StatusUnhealthy,
			Message:    err.Error(),
			DurationMs: duration.Milliseconds(),
		}
	}
	return Check{
		Name:       c.name,
		Status:     StatusHealthy,
		DurationMs: duration.Milliseconds(),
	}
}

// OutboxChecker следит за backlog transactional outbox. Стареющие
// pending-события означают, что publisher отстал или брокер недоступен:
// переходы при этом продолжают фиксироваться, поэтому статус degraded,
// а не unhealthy.
type OutboxChecker struct {
	repo   domain.OutboxRepository
	maxAge time.Duration
}

// NewOutboxChecker создаёт проверку backlog outbox. maxAge задаёт
// допустимый возраст самого старого pending-события.
func NewOutboxChecker(repo domain.OutboxRepository, maxAge time.Duration) *OutboxChecker {
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	return &OutboxChecker{repo: repo, maxAge: maxAge}
}

// Check оценивает возраст backlog.
func (c *OutboxChecker) Check() Check {
	start := time.Now()
	stats, err := c.repo.Stats()
	duration := time.Since(start)

	if err != nil {
		return Check{
			Name:       "outbox",
			Status:     StatusUnhealthy,
			Message:    err.Error(),
			DurationMs: duration.Milliseconds(),
		}
	}

	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() && time.Since(stats.OldestPendingAt) > c.maxAge {
		return Check{
			Name:       "outbox",
			Status:     StatusDegraded,
			Message:    "outbox backlog is not draining",
			DurationMs: duration.Milliseconds(),
		}
	}

	return Check{
		Name:       "outbox",
		Status:     StatusHealthy,
		DurationMs: duration.Milliseconds(),
	}
}
