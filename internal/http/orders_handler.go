package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrdersService interface {
	ListByUser(ctx context.Context, userID string) ([]*domain.Order, error)
	GetForUser(ctx context.Context, orderID, userID string) (*domain.Order, error)
	ListByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error)
	Transition(ctx context.Context, orderID string, target domain.OrderStatus) (*domain.Order, error)
	Dispatch(ctx context.Context, orderID, courierPhone string) (*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrdersService
	timeout time.Duration
	log     *zap.Logger
}

func NewOrdersHandler(orders OrdersService, timeout time.Duration, log *zap.Logger) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
		log:     log,
	}
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

type DispatchRequestDTO struct {
	CourierPhone string `json:"courier_phone"`
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return
	}

	list, err := h.orders.ListByUser(ctx, userID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderList(list))
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return
	}

	order, err := h.orders.GetForUser(ctx, chi.URLParam(r, "orderID"), userID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(order))
}

// AdminListOrders lists orders in the status given by ?status=, new by default.
func (h *OrdersHandler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := domain.OrderStatusNew
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := domain.ParseOrderStatus(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_status", err.Error())
			return
		}
		status = parsed
	}

	list, err := h.orders.ListByStatus(ctx, status)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderList(list))
}

func (h *OrdersHandler) AdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateStatusRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	target, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_status", err.Error())
		return
	}

	order, err := h.orders.Transition(ctx, chi.URLParam(r, "orderID"), target)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrdersHandler) AdminDispatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req DispatchRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.orders.Dispatch(ctx, chi.URLParam(r, "orderID"), req.CourierPhone)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(order))
}
