package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/bookflow/internal/health"
	"github.com/vladislavdragonenkov/bookflow/internal/jobs"
	"github.com/vladislavdragonenkov/bookflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bookflow/internal/metrics"
	"github.com/vladislavdragonenkov/bookflow/internal/scheduler"
	"github.com/vladislavdragonenkov/bookflow/internal/service/httpapi"
	"github.com/vladislavdragonenkov/bookflow/internal/service/idempotency"
	"github.com/vladislavdragonenkov/bookflow/internal/service/outbox"
	"github.com/vladislavdragonenkov/bookflow/internal/service/workflow"
	"github.com/vladislavdragonenkov/bookflow/internal/version"
)

// Run собирает и запускает сервис: хранилища, workflow-движок с
// восстановлением автопереходов, HTTP API, фоновые воркеры и плановую
// сверку. Блокируется до отмены ctx или фатальной ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.WithError(err).Warn("kafka unavailable, events will accumulate in outbox")
	}
	defer closeKafkaProducer(producer, logger)

	workflowMetrics := metrics.NewWorkflowMetrics()

	timers := scheduler.NewTimer()
	defer timers.Stop()

	engine := workflow.NewEngine(
		deps.Orders, deps.Notifications, deps.Timeline, deps.Outbox,
		timers, deps.Locker,
		logger.WithField("component", "workflow"),
		workflow.WithMetrics(workflowMetrics),
		workflow.WithDelays(cfg.Delays),
	)

	// Таймеры живут в памяти: после рестарта остаток каждой задержки
	// пересчитывается от сохранённого момента входа в статус.
	resumed, err := engine.ResumeAutoTransitions(ctx)
	if err != nil {
		return err
	}
	logger.WithField("resumed", resumed).Info("auto transitions restored")

	var wg sync.WaitGroup
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	if producer != nil {
		worker := outbox.NewWorker(deps.Outbox, kafka.NewOutboxPublisher(producer),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer)),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(workerCtx)
		}()
	}

	cleanup := idempotency.NewCleanupWorker(deps.Idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanup.Run(workerCtx)
	}()

	reconciler, err := jobs.NewReconciler(engine, logger.WithField("component", "reconciler"), cfg.ReconcileSchedule)
	if err != nil {
		return err
	}
	reconciler.Start()
	defer reconciler.Stop()

	consumer, err := initPaymentConsumer(cfg, engine, producer, logger)
	if err != nil {
		logger.WithError(err).Warn("payment consumer unavailable, capture events will not be processed")
	}
	if consumer != nil {
		if err := consumer.Start(workerCtx); err != nil {
			logger.WithError(err).Warn("failed to start payment consumer")
		} else {
			defer func() {
				if err := consumer.Stop(); err != nil {
					logger.WithError(err).Warn("failed to stop payment consumer")
				}
			}()
		}
	}

	api := httpapi.NewServer(engine, deps.Notifications,
		logger.WithField("component", "http"),
		httpapi.WithIdempotency(deps.Idempotency),
	)
	apiServer := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Router()}

	opsServer := startOpsServer(ctx, cfg.MetricsAddr, logger, buildHealthHandler(deps))

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("http api listening")
		errCh <- apiServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownHTTP(apiServer, logger)
		shutdownHTTP(opsServer, logger)
		stopWorkers()
		wg.Wait()
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(opsServer, logger)
		stopWorkers()
		wg.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// buildHealthHandler регистрирует проверки настроенных зависимостей.
func buildHealthHandler(deps *Dependencies) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.GetVersion())
	if deps.HasPersistentStore() {
		handler.RegisterChecker("postgres", healthcheck.NewPingChecker("postgres", 3*time.Second, deps.PingStore))
	}
	if deps.HasRedis() {
		handler.RegisterChecker("redis", healthcheck.NewPingChecker("redis", 3*time.Second, deps.PingRedis))
	}
	handler.RegisterChecker("outbox", healthcheck.NewOutboxChecker(deps.Outbox, time.Minute))
	return handler
}

// startOpsServer запускает служебный HTTP-сервер с метриками и health-пробами.
func startOpsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.WithField("addr", addr).Info("metrics and health endpoints listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("ops server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
