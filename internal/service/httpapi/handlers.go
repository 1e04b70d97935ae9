package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
	"github.com/vladislavdragonenkov/bookflow/internal/service/workflow"
)

type errorResponse struct {
	Error string `json:"error"`
}

type orderItemResponse struct {
	BookID     string `json:"book_id"`
	Title      string `json:"title"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	CustomerID      string              `json:"customer_id"`
	Status          string              `json:"status"`
	Currency        string              `json:"currency"`
	AmountMinor     int64               `json:"amount_minor"`
	PaymentMethod   string              `json:"payment_method"`
	ShippingAddress string              `json:"shipping_address,omitempty"`
	Items           []orderItemResponse `json:"items"`
	Version         int64               `json:"version"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	StatusEnteredAt time.Time           `json:"status_entered_at"`
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to"`
	Trigger  string    `json:"trigger"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred_at"`
}

type notificationResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	OrderID   string    `json:"order_id"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type createOrderRequest struct {
	CustomerID      string `json:"customer_id"`
	Currency        string `json:"currency"`
	PaymentMethod   string `json:"payment_method"`
	ShippingAddress string `json:"shipping_address"`
	Items           []struct {
		BookID     string `json:"book_id"`
		Title      string `json:"title"`
		Qty        int32  `json:"qty"`
		PriceMinor int64  `json:"price_minor"`
	} `json:"items"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			BookID:     item.BookID,
			Title:      item.Title,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}
	return orderResponse{
		ID:              order.ID,
		CustomerID:      order.CustomerID,
		Status:          string(order.Status),
		Currency:        order.Currency,
		AmountMinor:     order.AmountMinor,
		PaymentMethod:   string(order.PaymentMethod),
		ShippingAddress: order.ShippingAddress,
		Items:           items,
		Version:         order.Version,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
		StatusEnteredAt: order.StatusEnteredAt,
	}
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	params := workflow.CreateOrderParams{
		CustomerID:      req.CustomerID,
		Currency:        req.Currency,
		PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
		ShippingAddress: req.ShippingAddress,
	}
	for _, item := range req.Items {
		params.Items = append(params.Items, workflow.CreateOrderItem{
			BookID:     item.BookID,
			Title:      item.Title,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}

	order, err := s.engine.CreateOrder(r.Context(), params)
	if err != nil {
		s.writeError(w, err, "failed to create order")
		return
	}

	s.writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, err, "failed to get order")
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "customer_id query parameter is required"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	orders, err := s.engine.ListOrders(r.Context(), customerID, limit)
	if err != nil {
		s.writeError(w, err, "failed to list orders")
		return
	}

	responses := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		responses = append(responses, toOrderResponse(order))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"orders": responses})
}

func (s *Server) getTimeline(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	events, err := s.engine.OrderTimeline(r.Context(), orderID)
	if err != nil {
		s.writeError(w, err, "failed to get order timeline")
		return
	}

	responses := make([]timelineEventResponse, 0, len(events))
	for _, event := range events {
		responses = append(responses, timelineEventResponse{
			Type:     event.Type,
			From:     string(event.From),
			To:       string(event.To),
			Trigger:  string(event.Trigger),
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"order_id": orderID,
		"events":   responses,
	})
}

func (s *Server) payOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.ProcessPayment(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, err, "failed to process payment")
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) confirmCOD(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.ConfirmCODOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, err, "failed to confirm order")
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) shipOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.ShipOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, err, "failed to ship order")
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) customerCancel(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.CustomerCancelOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, err, "failed to cancel order")
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) adminCancel(w http.ResponseWriter, r *http.Request) {
	req := decodeReason(r)
	order, err := s.engine.AdminCancelOrder(r.Context(), chi.URLParam(r, "orderID"), req.Reason)
	if err != nil {
		s.writeError(w, err, "failed to cancel order")
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) requestReturn(w http.ResponseWriter, r *http.Request) {
	req := decodeReason(r)
	order, err := s.engine.CustomerRequestReturn(r.Context(), chi.URLParam(r, "orderID"), req.Reason)
	if err != nil {
		s.writeError(w, err, "failed to request return")
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) approveReturn(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.ApproveReturn(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, err, "failed to approve return")
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) rejectReturn(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.RejectReturn(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, err, "failed to reject return")
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) confirmDelivery(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.CustomerConfirmDelivery(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, err, "failed to confirm delivery")
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) failOrder(w http.ResponseWriter, r *http.Request) {
	req := decodeReason(r)
	order, err := s.engine.FailOrder(r.Context(), chi.URLParam(r, "orderID"), req.Reason)
	if err != nil {
		s.writeError(w, err, "failed to mark order as failed")
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	notifications, err := s.notifications.List(unreadOnly, limit)
	if err != nil {
		s.writeError(w, err, "failed to list notifications")
		return
	}

	responses := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, notificationResponse{
			ID:        n.ID,
			Type:      string(n.Type),
			Title:     n.Title,
			Message:   n.Message,
			OrderID:   n.OrderID,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"notifications": responses})
}

func (s *Server) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := s.notifications.MarkRead(chi.URLParam(r, "notificationID")); err != nil {
		s.writeError(w, err, "failed to mark notification as read")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeReason читает опциональное тело {"reason": "..."}; пустое тело валидно.
func decodeReason(r *http.Request) reasonRequest {
	var req reasonRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	return req
}

// writeError транслирует доменные ошибки в HTTP-статусы. Текст guard-отказа
// отдаётся пользователю как объяснение недоступного действия.
func (s *Server) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
	case errors.Is(err, domain.ErrNotificationNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "notification not found"})
	case domain.IsGuardRejection(err):
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrOrderVersionConflict), errors.Is(err, domain.ErrLockNotAcquired):
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case isValidationError(err):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.logger.WithError(err).Error(fallback)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: fallback})
	}
}

func isValidationError(err error) bool {
	for _, validation := range []error{
		domain.ErrCustomerRequired, domain.ErrCurrencyRequired, domain.ErrItemsRequired,
		domain.ErrAmountNegative, domain.ErrItemQtyInvalid, domain.ErrItemPriceInvalid,
		domain.ErrAmountMismatch, domain.ErrOrderIDRequired,
	} {
		if errors.Is(err, validation) {
			return true
		}
	}
	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("failed to encode json response")
	}
}
