package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics содержит метрики workflow жизненного цикла заказов.
type WorkflowMetrics struct {
	// Переходы статусов: from/to/trigger и результат (committed, rejected, conflict).
	transitions *prometheus.CounterVec

	// Guard-отказы по операциям.
	guardRejections *prometheus.CounterVec

	// Сработавшие таймеры, которые guard подавил как устаревшие.
	staleTimers prometheus.Counter

	// Запланированные и ещё не сработавшие автопереходы.
	scheduledTransitions prometheus.Gauge

	// Время выполнения одного перехода (взятие лока, guard, запись).
	transitionDuration prometheus.Histogram

	// Созданные уведомления по типам.
	notifications *prometheus.CounterVec

	// События timeline и outbox.
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewWorkflowMetrics регистрирует метрики в default registry.
func NewWorkflowMetrics() *WorkflowMetrics {
	return newWorkflowMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newWorkflowMetricsWithRegisterer(registerer prometheus.Registerer) *WorkflowMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WorkflowMetrics{
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookflow_order_transitions_total",
			Help: "Order status transitions by source, target, trigger and result",
		}, []string{"from", "to", "trigger", "result"}),
		guardRejections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookflow_guard_rejections_total",
			Help: "Workflow operations rejected by status guards",
		}, []string{"operation"}),
		staleTimers: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookflow_stale_timers_total",
			Help: "Delayed transitions suppressed because the order left the source status",
		}),
		scheduledTransitions: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "bookflow_scheduled_transitions",
			Help: "Delayed auto-transitions currently scheduled",
		}),
		transitionDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "bookflow_transition_duration_seconds",
			Help:    "Duration of a single status transition commit",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		notifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookflow_notifications_total",
			Help: "Admin notifications created by type",
		}, []string{"type"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookflow_timeline_events_total",
			Help: "Timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookflow_outbox_events_total",
			Help: "Events enqueued to the transactional outbox",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordTransition фиксирует зафиксированный или отклонённый переход.
func (m *WorkflowMetrics) RecordTransition(from, to, trigger, result string) {
	m.transitions.WithLabelValues(from, to, trigger, result).Inc()
}

// RecordGuardRejection увеличивает счётчик guard-отказов операции.
func (m *WorkflowMetrics) RecordGuardRejection(operation string) {
	m.guardRejections.WithLabelValues(operation).Inc()
}

// RecordStaleTimer фиксирует подавленный устаревший таймер.
func (m *WorkflowMetrics) RecordStaleTimer() {
	m.staleTimers.Inc()
}

// RecordTransitionScheduled увеличивает gauge запланированных автопереходов.
func (m *WorkflowMetrics) RecordTransitionScheduled() {
	m.scheduledTransitions.Inc()
}

// RecordTransitionSettled уменьшает gauge после срабатывания или отмены таймера.
func (m *WorkflowMetrics) RecordTransitionSettled() {
	m.scheduledTransitions.Dec()
}

// RecordTransitionDuration записывает время фиксации перехода.
func (m *WorkflowMetrics) RecordTransitionDuration(duration time.Duration) {
	m.transitionDuration.Observe(duration.Seconds())
}

// RecordNotification увеличивает счётчик уведомлений данного типа.
func (m *WorkflowMetrics) RecordNotification(notificationType string) {
	m.notifications.WithLabelValues(notificationType).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *WorkflowMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *WorkflowMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
