package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const defaultReconcileSchedule = "@every 1m"

var (
	reconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookflow_reconcile_runs_total",
		Help: "Total number of auto transition reconciliation runs grouped by result.",
	}, []string{"result"})
	reconcileLastResumed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bookflow_reconcile_last_resumed",
		Help: "Number of auto transitions resumed during the last reconciliation run.",
	})
)

// TransitionResumer перепланирует отложенные автопереходы по данным хранилища.
type TransitionResumer interface {
	ResumeAutoTransitions(ctx context.Context) (int, error)
}

// Reconciler периодически сверяет запланированные автопереходы с хранилищем.
// Таймеры живут в памяти процесса: упавший под нагрузкой или зависший
// callback оставил бы заказ навсегда в промежуточном статусе. Повторное
// планирование идемпотентно — остаток задержки каждый раз пересчитывается
// от сохранённого момента входа в статус.
type Reconciler struct {
	resumer  TransitionResumer
	logger   *log.Entry
	cron     *cron.Cron
	schedule string
}

// NewReconciler создаёт cron-задачу сверки автопереходов. Пустой schedule
// заменяется значением по умолчанию (раз в минуту).
func NewReconciler(resumer TransitionResumer, logger *log.Entry, schedule string) (*Reconciler, error) {
	if logger == nil {
		logger = log.WithField("component", "reconciler")
	}
	if schedule == "" {
		schedule = defaultReconcileSchedule
	}

	r := &Reconciler{
		resumer:  resumer,
		logger:   logger,
		cron:     cron.New(),
		schedule: schedule,
	}

	if _, err := r.cron.AddFunc(schedule, r.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}

	return r, nil
}

// Start запускает периодическую сверку.
func (r *Reconciler) Start() {
	r.cron.Start()
	r.logger.WithField("schedule", r.schedule).Info("auto transition reconciler started")
}

// Stop останавливает cron и дожидается завершения текущего прогона.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("auto transition reconciler stopped")
}

// RunOnce выполняет один прогон сверки.
func (r *Reconciler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resumed, err := r.resumer.ResumeAutoTransitions(ctx)
	if err != nil {
		reconcileRunsTotal.WithLabelValues("error").Inc()
		r.logger.WithError(err).Warn("auto transition reconciliation failed")
		return
	}

	reconcileRunsTotal.WithLabelValues("ok").Inc()
	reconcileLastResumed.Set(float64(resumed))
	if resumed > 0 {
		r.logger.WithField("resumed", resumed).Info("auto transitions reconciled")
	}
}
