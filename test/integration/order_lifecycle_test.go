package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
	"github.com/vladislavdragonenkov/bookflow/internal/locker"
	"github.com/vladislavdragonenkov/bookflow/internal/scheduler"
	"github.com/vladislavdragonenkov/bookflow/internal/service/httpapi"
	"github.com/vladislavdragonenkov/bookflow/internal/service/workflow"
	"github.com/vladislavdragonenkov/bookflow/internal/storage/memory"
)

// OrderLifecycleTestSuite прогоняет полный жизненный цикл заказа через
// HTTP API и движок переходов с виртуальными часами.
type OrderLifecycleTestSuite struct {
	suite.Suite
	server        *httptest.Server
	engine        *workflow.Engine
	orders        domain.OrderRepository
	notifications domain.NotificationRepository
	clock         *scheduler.Manual
	delays        workflow.Delays
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetOutput(io.Discard)
	logger := baseLogger.WithField("component", "integration-test")

	s.clock = scheduler.NewManual(time.Date(2025, 3, 18, 12, 0, 0, 0, time.UTC))
	s.orders = memory.NewOrderRepository()
	s.notifications = memory.NewNotificationRepository()
	s.delays = workflow.DefaultDelays()

	s.engine = workflow.NewEngine(
		s.orders,
		s.notifications,
		memory.NewTimelineRepository(),
		memory.NewOutboxRepository(),
		s.clock,
		locker.NewProcess(),
		logger,
		workflow.WithDelays(s.delays),
	)

	api := httpapi.NewServer(s.engine, s.notifications, logger, httpapi.WithIdempotency(memory.NewIdempotencyRepository()))
	s.server = httptest.NewServer(api.Router())
}

func (s *OrderLifecycleTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *OrderLifecycleTestSuite) post(path string, body any, headers ...string) (int, map[string]any) {
	s.T().Helper()

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(http.MethodPost, s.server.URL+path, reqBody)
	require.NoError(s.T(), err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.server.Client().Do(req)
	require.NoError(s.T(), err)
	defer resp.Body.Close()

	return resp.StatusCode, decodeBody(s.T(), resp.Body)
}

func (s *OrderLifecycleTestSuite) get(path string) (int, map[string]any) {
	s.T().Helper()

	resp, err := s.server.Client().Get(s.server.URL + path)
	require.NoError(s.T(), err)
	defer resp.Body.Close()

	return resp.StatusCode, decodeBody(s.T(), resp.Body)
}

func decodeBody(t *testing.T, body io.Reader) map[string]any {
	t.Helper()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	if len(raw) == 0 {
		return nil
	}

	var decoded any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	if asMap, ok := decoded.(map[string]any); ok {
		return asMap
	}
	// Списки заворачиваем, чтобы helper имел единый тип результата.
	return map[string]any{"items": decoded}
}

func (s *OrderLifecycleTestSuite) createOrder() string {
	s.T().Helper()

	status, body := s.post("/api/v1/orders", map[string]any{
		"customer_id": "customer-123",
		"currency":    "RUB",
		"items": []map[string]any{
			{"book_id": "book-1", "title": "Программирование на Go", "qty": 1, "price_minor": 199900},
			{"book_id": "book-2", "title": "Чистая архитектура", "qty": 2, "price_minor": 49900},
		},
	})
	require.Equal(s.T(), http.StatusCreated, status)
	require.Equal(s.T(), "PENDING", body["status"])
	require.EqualValues(s.T(), 299700, body["amount_minor"])

	orderID, ok := body["id"].(string)
	require.True(s.T(), ok)
	require.NotEmpty(s.T(), orderID)
	return orderID
}

func (s *OrderLifecycleTestSuite) orderNotifications(orderID string) []domain.Notification {
	s.T().Helper()

	all, err := s.notifications.List(false, 0)
	require.NoError(s.T(), err)

	filtered := make([]domain.Notification, 0, len(all))
	for _, notification := range all {
		if notification.OrderID == orderID {
			filtered = append(filtered, notification)
		}
	}
	return filtered
}

func (s *OrderLifecycleTestSuite) orderStatus(orderID string) string {
	s.T().Helper()

	status, body := s.get("/api/v1/orders/" + orderID)
	require.Equal(s.T(), http.StatusOK, status)
	return body["status"].(string)
}

func (s *OrderLifecycleTestSuite) TestSuccessfulOrderLifecycle() {
	orderID := s.createOrder()

	status, _ := s.post("/api/v1/orders/"+orderID+"/pay", nil, "Idempotency-Key", "it-pay-1")
	require.Equal(s.T(), http.StatusOK, status)
	require.Equal(s.T(), "PAID", s.orderStatus(orderID))

	// Автоматическая цепочка доводит заказ до сборки.
	s.clock.Advance(s.delays.PaymentConfirmation)
	require.Equal(s.T(), "CONFIRMED", s.orderStatus(orderID))
	s.clock.Advance(s.delays.Packing)
	require.Equal(s.T(), "PACKING", s.orderStatus(orderID))

	status, _ = s.post("/api/v1/orders/"+orderID+"/ship", nil, "Idempotency-Key", "it-ship-1")
	require.Equal(s.T(), http.StatusOK, status)

	s.clock.Advance(s.delays.Delivery)
	require.Equal(s.T(), "DELIVERED", s.orderStatus(orderID))

	status, timeline := s.get("/api/v1/orders/" + orderID + "/timeline")
	require.Equal(s.T(), http.StatusOK, status)
	events, ok := timeline["items"].([]any)
	require.True(s.T(), ok)
	// created + pay + confirm + packing + ship + delivered
	require.GreaterOrEqual(s.T(), len(events), 6)

	notifications := s.orderNotifications(orderID)
	require.Len(s.T(), notifications, 1)
	require.Equal(s.T(), domain.NotificationTypeOrderDelivered, notifications[0].Type)
}

func (s *OrderLifecycleTestSuite) TestAdminCancellationStopsAutoChain() {
	orderID := s.createOrder()

	status, _ := s.post("/api/v1/orders/"+orderID+"/pay", nil, "Idempotency-Key", "it-pay-2")
	require.Equal(s.T(), http.StatusOK, status)

	status, body := s.post("/api/v1/orders/"+orderID+"/admin-cancel", map[string]any{"reason": "customer changed mind"})
	require.Equal(s.T(), http.StatusOK, status)
	require.Equal(s.T(), "CANCELLED", body["status"])

	// Отменённый таймер не должен оживить заказ.
	s.clock.Advance(s.delays.PaymentConfirmation + s.delays.Packing)
	require.Equal(s.T(), "CANCELLED", s.orderStatus(orderID))

	_, timeline := s.get("/api/v1/orders/" + orderID + "/timeline")
	events := timeline["items"].([]any)
	var cancelReason string
	for _, raw := range events {
		event := raw.(map[string]any)
		if event["to"] == "CANCELLED" {
			cancelReason, _ = event["reason"].(string)
		}
	}
	require.Equal(s.T(), "customer changed mind", cancelReason)
}

func (s *OrderLifecycleTestSuite) TestReturnFlow() {
	orderID := s.createOrder()

	s.post("/api/v1/orders/"+orderID+"/pay", nil, "Idempotency-Key", "it-pay-3")
	s.clock.Advance(s.delays.PaymentConfirmation)
	s.clock.Advance(s.delays.Packing)
	s.post("/api/v1/orders/"+orderID+"/ship", nil, "Idempotency-Key", "it-ship-3")
	s.clock.Advance(s.delays.Delivery)
	require.Equal(s.T(), "DELIVERED", s.orderStatus(orderID))

	status, _ := s.post("/api/v1/orders/"+orderID+"/return", map[string]any{"reason": "printing defect"})
	require.Equal(s.T(), http.StatusOK, status)
	require.Equal(s.T(), "RETURN_REQUESTED", s.orderStatus(orderID))

	status, body := s.post("/api/v1/orders/"+orderID+"/return/approve", nil)
	require.Equal(s.T(), http.StatusOK, status)
	require.Equal(s.T(), "RETURNED", body["status"])

	notifications := s.orderNotifications(orderID)
	types := make(map[domain.NotificationType]int, len(notifications))
	for _, notification := range notifications {
		types[notification.Type]++
	}
	require.Equal(s.T(), 1, types[domain.NotificationTypeOrderDelivered])
	require.Equal(s.T(), 1, types[domain.NotificationTypeReturnRequested])
	require.Equal(s.T(), 1, types[domain.NotificationTypeReturnApproved])
}

func (s *OrderLifecycleTestSuite) TestGuardRejectionKeepsStatus() {
	orderID := s.createOrder()

	// Отгрузка дозволена только из сборки.
	status, body := s.post("/api/v1/orders/"+orderID+"/ship", nil, "Idempotency-Key", "it-ship-4")
	require.Equal(s.T(), http.StatusConflict, status)
	require.NotEmpty(s.T(), body["error"])
	require.Equal(s.T(), "PENDING", s.orderStatus(orderID))
}

func (s *OrderLifecycleTestSuite) TestResumeAfterRestart() {
	orderID := s.createOrder()
	s.post("/api/v1/orders/"+orderID+"/pay", nil, "Idempotency-Key", "it-pay-5")

	// Половина задержки прошла, затем "рестарт": новый движок на тех же данных.
	s.clock.Advance(s.delays.PaymentConfirmation / 2)
	require.Equal(s.T(), "PAID", s.orderStatus(orderID))

	baseLogger := log.New()
	baseLogger.SetOutput(io.Discard)
	restarted := workflow.NewEngine(
		s.orders,
		s.notifications,
		memory.NewTimelineRepository(),
		memory.NewOutboxRepository(),
		s.clock,
		locker.NewProcess(),
		baseLogger.WithField("component", "integration-restart"),
		workflow.WithDelays(s.delays),
	)

	resumed, err := restarted.ResumeAutoTransitions(context.Background())
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, resumed)

	s.clock.Advance(s.delays.PaymentConfirmation / 2)

	order, err := s.orders.Get(orderID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.OrderStatusConfirmed, order.Status)
}

func TestOrderLifecycle(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
