package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/fjod/go_loyalty/internal/pricing"
	"github.com/fjod/go_loyalty/pkg/clock"
	"github.com/fjod/go_loyalty/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	// GetOrderByID fails with domain.ErrNotFound.
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	// ListOrdersByUserID returns newest first.
	ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)
	// ListOrdersByStatus returns oldest first.
	ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error)
	// UpdateOrderStatus applies from -> to only if the stored status is
	// still from; otherwise it returns *domain.InvalidTransitionError.
	UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) error
}

// Notifier delivers a formatted text to a destination address.
type Notifier interface {
	Send(ctx context.Context, destination, text string) error
}

// StatusObserver is told about every committed status change, after the
// customer notification.
type StatusObserver interface {
	OrderStatusChanged(ctx context.Context, order *domain.Order, from domain.OrderStatus)
}

type CreateRequest struct {
	// OrderID is optional; a new id is generated when empty.
	OrderID       string
	UserID        string
	Items         []domain.CartLineItem
	Loyalty       domain.AppliedLoyalty
	Delivery      domain.DeliverySelection
	Customer      domain.CustomerInfo
	PaymentMethod domain.PaymentMethod
}

// Manager creates orders and moves them through the status graph.
type Manager struct {
	repo      Repository
	engine    *pricing.Engine
	notifier  Notifier
	messages  *Messages
	observers []StatusObserver
	clock     clock.Clock
	log       *zap.Logger
}

// NewManager accepts a nil notifier, in which case no messages are sent.
func NewManager(repo Repository, engine *pricing.Engine, notifier Notifier, messages *Messages, clk clock.Clock, log *zap.Logger) *Manager {
	return &Manager{
		repo:     repo,
		engine:   engine,
		notifier: notifier,
		messages: messages,
		clock:    clk,
		log:      log,
	}
}

// Subscribe registers o for status changes. It must be called before the
// manager is shared between goroutines.
func (m *Manager) Subscribe(o StatusObserver) {
	m.observers = append(m.observers, o)
}

// Create snapshots the items, freezes the price and stores a new order.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*domain.Order, error) {
	if req.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}
	if strings.TrimSpace(req.Delivery.Window) == "" {
		return nil, domain.ErrMissingDeliverySlot
	}
	if !req.PaymentMethod.IsValid() {
		return nil, fmt.Errorf("%q: %w", req.PaymentMethod, domain.ErrInvalidPaymentMethod)
	}
	if !req.Customer.IsComplete() {
		return nil, domain.ErrInvalidCustomer
	}
	for _, li := range req.Items {
		if li.Quantity < 1 {
			return nil, fmt.Errorf("line %s quantity %d: %w", li.LineID, li.Quantity, domain.ErrInvalidAmount)
		}
	}

	items := domain.CloneLineItems(req.Items)
	price := m.engine.Price(items, pricing.Selection{
		GiftCardValue: req.Loyalty.GiftCardValue,
		CoinsToUse:    req.Loyalty.CoinsUsed,
	})

	id := req.OrderID
	if id == "" {
		id = uuid.NewString()
	}
	now := m.clock.Now()
	order := &domain.Order{
		ID:              id,
		UserID:          req.UserID,
		Items:           items,
		Subtotal:        price.Subtotal,
		Discount:        price.Discount,
		Total:           price.Total,
		CoinSubtotal:    price.CoinSubtotal,
		Loyalty:         req.Loyalty,
		Status:          domain.OrderStatusNew,
		Delivery:        req.Delivery,
		PaymentMethod:   req.PaymentMethod,
		Customer:        req.Customer,
		CreatedAt:       now,
		StatusUpdatedAt: now,
	}

	if err := m.repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	logger.WithTrace(ctx, m.log).Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("total", order.Total.StringFixed(domain.MoneyPlaces)))
	return order.Clone(), nil
}

func (m *Manager) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := m.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return order, nil
}

// GetForUser hides orders of other users behind domain.ErrNotFound.
func (m *Manager) GetForUser(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	order, err := m.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	return order, nil
}

func (m *Manager) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	list, err := m.repo.ListOrdersByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders of %s: %w", userID, err)
	}
	return list, nil
}

func (m *Manager) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	list, err := m.repo.ListOrdersByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list %s orders: %w", status, err)
	}
	return list, nil
}

// Transition moves the order to target and notifies the customer when the
// new status is one they hear about.
func (m *Manager) Transition(ctx context.Context, orderID string, target domain.OrderStatus) (*domain.Order, error) {
	order, err := m.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(target) {
		return nil, &domain.InvalidTransitionError{From: order.Status, To: target}
	}

	now := m.clock.Now()
	if err := m.repo.UpdateOrderStatus(ctx, orderID, order.Status, target, now); err != nil {
		return nil, fmt.Errorf("update order %s: %w", orderID, err)
	}
	from := order.Status
	order.Status = target
	order.StatusUpdatedAt = now

	log := logger.WithTrace(ctx, m.log)
	log.Info("order status changed",
		zap.String("order_id", orderID),
		zap.String("from", from.String()),
		zap.String("to", target.String()))

	if kind, ok := customerNoticeFor(target); ok {
		m.notify(ctx, m.messages.CustomerDestination(order), m.messages.Customer(order, kind), orderID)
	}
	for _, o := range m.observers {
		o.OrderStatusChanged(ctx, order.Clone(), from)
	}
	return order, nil
}

// Dispatch hands the order to a courier: the courier gets the delivery
// details, then the order moves to delivering. A failed send leaves the
// order untouched.
func (m *Manager) Dispatch(ctx context.Context, orderID, courierPhone string) (*domain.Order, error) {
	if strings.TrimSpace(courierPhone) == "" {
		return nil, fmt.Errorf("courier phone: %w", domain.ErrInvalidCustomer)
	}
	order, err := m.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(domain.OrderStatusDelivering) {
		return nil, &domain.InvalidTransitionError{From: order.Status, To: domain.OrderStatusDelivering}
	}

	if m.notifier != nil {
		dest := m.messages.NormalizePhone(courierPhone)
		if err := m.notifier.Send(ctx, dest, m.messages.Courier(order)); err != nil {
			return nil, fmt.Errorf("notify courier: %w", err)
		}
	}
	return m.Transition(ctx, orderID, domain.OrderStatusDelivering)
}

// notify is best-effort: failures are logged, never returned.
func (m *Manager) notify(ctx context.Context, destination, text, orderID string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Send(ctx, destination, text); err != nil {
		logger.WithTrace(ctx, m.log).Warn("notification failed",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
}

func customerNoticeFor(status domain.OrderStatus) (NoticeKind, bool) {
	switch status {
	case domain.OrderStatusProcessing:
		return NoticeAccepted, true
	case domain.OrderStatusRejected:
		return NoticeRejected, true
	case domain.OrderStatusDelivering:
		return NoticeOnTheWay, true
	}
	return "", false
}
