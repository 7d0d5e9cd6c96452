package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_loyalty/internal/cart"
	"github.com/fjod/go_loyalty/internal/checkout"
	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/fjod/go_loyalty/internal/pricing"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CartService interface {
	Start(ctx context.Context, userID string) (*domain.Session, error)
	Get(ctx context.Context, sessionID, userID string) (*domain.Session, error)
	End(ctx context.Context, sessionID, userID string) error
	Quote(session *domain.Session) pricing.Breakdown
	AddItem(ctx context.Context, sessionID, userID string, req cart.AddItemRequest) (*domain.Session, error)
	UpdateQuantity(ctx context.Context, sessionID, userID, lineID string, quantity int) (*domain.Session, error)
	RemoveItem(ctx context.Context, sessionID, userID, lineID string) (*domain.Session, error)
	Clear(ctx context.Context, sessionID, userID string) (*domain.Session, error)
	SelectLoyalty(ctx context.Context, sessionID, userID, giftCardID string, coinsToUse int64) (*domain.Session, error)
	ConfirmLoyalty(ctx context.Context, sessionID, userID string) (*domain.Session, error)
	ResetLoyalty(ctx context.Context, sessionID, userID string) (*domain.Session, error)
}

type CheckoutService interface {
	PlaceOrder(ctx context.Context, req checkout.Request) (*domain.Order, error)
}

type CartHandler struct {
	cart     CartService
	checkout CheckoutService
	timeout  time.Duration
	log      *zap.Logger
}

func NewCartHandler(cartService CartService, checkoutService CheckoutService, timeout time.Duration, log *zap.Logger) *CartHandler {
	return &CartHandler{
		cart:     cartService,
		checkout: checkoutService,
		timeout:  timeout,
		log:      log,
	}
}

type AddItemRequestDTO struct {
	ProductID string   `json:"product_id"`
	Quantity  int      `json:"quantity"`
	Options   []string `json:"options"`
	ExtraIDs  []string `json:"extra_ids"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type SelectLoyaltyRequestDTO struct {
	GiftCardID string `json:"gift_card_id"`
	Coins      int64  `json:"coins"`
}

type CheckoutRequestDTO struct {
	DeliveryDate   string      `json:"delivery_date"`
	DeliveryWindow string      `json:"delivery_window"`
	PaymentMethod  string      `json:"payment_method"`
	Customer       customerDTO `json:"customer"`
}

// identity returns the caller and the session named by X-Session-ID, or
// writes the error response and returns false.
func (h *CartHandler) identity(w http.ResponseWriter, r *http.Request) (userID, sessionID string, ok bool) {
	userID = getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return "", "", false
	}
	sessionID = strings.TrimSpace(r.Header.Get(HeaderSessionID))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session", "X-Session-ID header is required")
		return "", "", false
	}
	return userID, sessionID, true
}

func (h *CartHandler) respondSession(w http.ResponseWriter, status int, s *domain.Session) {
	respondJSON(w, status, toSessionResponse(s, h.cart.Quote(s)))
}

func (h *CartHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return
	}

	session, err := h.cart.Start(ctx, userID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	w.Header().Set(HeaderSessionID, session.ID)
	h.respondSession(w, http.StatusCreated, session)
}

func (h *CartHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, sessionID, ok := h.identity(w, r)
	if !ok {
		return
	}
	if err := h.cart.End(ctx, sessionID, userID); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, sessionID, ok := h.identity(w, r)
	if !ok {
		return
	}
	session, err := h.cart.Get(ctx, sessionID, userID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	h.respondSession(w, http.StatusOK, session)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, sessionID, ok := h.identity(w, r)
	if !ok {
		return
	}
	session, err := h.cart.Clear(ctx, sessionID, userID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	h.respondSession(w, http.StatusOK, session)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, sessionID, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	session, err := h.cart.AddItem(ctx, sessionID, userID, cart.AddItemRequest{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Options:   req.Options,
		ExtraIDs:  req.ExtraIDs,
	})
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	h.respondSession(w, http.StatusCreated, session)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, sessionID, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at most 99")
		return
	}

	session, err := h.cart.UpdateQuantity(ctx, sessionID, userID, chi.URLParam(r, "lineID"), req.Quantity)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	h.respondSession(w, http.StatusOK, session)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, sessionID, ok := h.identity(w, r)
	if !ok {
		return
	}
	session, err := h.cart.RemoveItem(ctx, sessionID, userID, chi.URLParam(r, "lineID"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	h.respondSession(w, http.StatusOK, session)
}

func (h *CartHandler) SelectLoyalty(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, sessionID, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req SelectLoyaltyRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.cart.SelectLoyalty(ctx, sessionID, userID, req.GiftCardID, req.Coins)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	h.respondSession(w, http.StatusOK, session)
}

func (h *CartHandler) ConfirmLoyalty(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, sessionID, ok := h.identity(w, r)
	if !ok {
		return
	}
	session, err := h.cart.ConfirmLoyalty(ctx, sessionID, userID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	h.respondSession(w, http.StatusOK, session)
}

func (h *CartHandler) ResetLoyalty(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, sessionID, ok := h.identity(w, r)
	if !ok {
		return
	}
	session, err := h.cart.ResetLoyalty(ctx, sessionID, userID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	h.respondSession(w, http.StatusOK, session)
}

func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, sessionID, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req CheckoutRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	delivery := domain.DeliverySelection{Window: strings.TrimSpace(req.DeliveryWindow)}
	if req.DeliveryDate != "" {
		date, err := time.Parse(time.DateOnly, req.DeliveryDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_delivery_date", "delivery_date must be YYYY-MM-DD")
			return
		}
		delivery.Date = date
	}

	order, err := h.checkout.PlaceOrder(ctx, checkout.Request{
		SessionID:     sessionID,
		UserID:        userID,
		Delivery:      delivery,
		Customer:      domain.CustomerInfo(req.Customer),
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOrderResponse(order))
}
