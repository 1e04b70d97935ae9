package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
	"github.com/vladislavdragonenkov/bookflow/internal/service/workflow"
)

// Server — HTTP-фасад workflow-движка для витрины и админ-панели.
type Server struct {
	engine        *workflow.Engine
	notifications domain.NotificationRepository
	idempotency   domain.IdempotencyRepository
	logger        *log.Entry
	router        chi.Router
}

// Option настраивает Server.
type Option func(*Server)

// WithIdempotency включает защиту платёжного endpoint по Idempotency-Key.
func WithIdempotency(repo domain.IdempotencyRepository) Option {
	return func(s *Server) {
		s.idempotency = repo
	}
}

// NewServer создаёт HTTP-сервер поверх workflow-движка.
func NewServer(
	engine *workflow.Engine,
	notifications domain.NotificationRepository,
	logger *log.Entry,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}

	s := &Server{
		engine:        engine,
		notifications: notifications,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = s.buildRouter()
	return s
}

// Router возвращает корневой http.Handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", s.createOrder)
			r.Get("/", s.listOrders)

			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", s.getOrder)
				r.Get("/timeline", s.getTimeline)

				r.With(s.idempotencyKey).Post("/pay", s.payOrder)
				r.Post("/confirm-cod", s.confirmCOD)
				r.Post("/ship", s.shipOrder)
				r.Post("/cancel", s.customerCancel)
				r.Post("/admin-cancel", s.adminCancel)
				r.Post("/return", s.requestReturn)
				r.Post("/return/approve", s.approveReturn)
				r.Post("/return/reject", s.rejectReturn)
				r.Post("/confirm-delivery", s.confirmDelivery)
				r.Post("/fail", s.failOrder)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.listNotifications)
			r.Post("/{notificationID}/read", s.markNotificationRead)
		})
	})

	return r
}

// requestLogger пишет одну структурированную строку на запрос.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(started),
			"request_id": middleware.GetReqID(r.Context()),
		}).Info("http request")
	})
}
