package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/fjod/go_loyalty/internal/orders"
	"github.com/fjod/go_loyalty/internal/pricing"
	"github.com/fjod/go_loyalty/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Sessions interface {
	Get(ctx context.Context, sessionID, userID string) (*domain.Session, error)
	CompleteCheckout(ctx context.Context, sessionID, userID string) (*domain.Session, error)
}

type Coins interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Spend(ctx context.Context, userID string, amount int64, orderID string) error
	Refund(ctx context.Context, userID string, amount int64, orderID string) error
}

type GiftCards interface {
	RedeemGiftCard(ctx context.Context, userID, cardID string) (*domain.GiftCard, error)
	RestoreGiftCard(ctx context.Context, cardID string) error
}

type OrderCreator interface {
	Create(ctx context.Context, req orders.CreateRequest) (*domain.Order, error)
}

type Request struct {
	SessionID     string
	UserID        string
	Delivery      domain.DeliverySelection
	Customer      domain.CustomerInfo
	PaymentMethod domain.PaymentMethod
}

// Service turns a session with a confirmed loyalty selection into an order.
type Service struct {
	sessions  Sessions
	coins     Coins
	giftCards GiftCards
	orders    OrderCreator
	engine    *pricing.Engine
	notifier  orders.Notifier
	messages  *orders.Messages
	log       *zap.Logger
}

// NewService accepts a nil notifier; the store then learns about orders
// only through the order list.
func NewService(
	sessions Sessions,
	coins Coins,
	giftCards GiftCards,
	orderCreator OrderCreator,
	engine *pricing.Engine,
	notifier orders.Notifier,
	messages *orders.Messages,
	log *zap.Logger,
) *Service {
	return &Service{
		sessions:  sessions,
		coins:     coins,
		giftCards: giftCards,
		orders:    orderCreator,
		engine:    engine,
		notifier:  notifier,
		messages:  messages,
		log:       log,
	}
}

// PlaceOrder applies the confirmed selection and creates the order. When a
// step fails, everything applied before it is rolled back.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (*domain.Order, error) {
	log := logger.WithTrace(ctx, s.log).With(zap.String("session_id", req.SessionID))

	session, err := s.sessions.Get(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}
	if len(session.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}
	if req.Delivery.Window == "" {
		return nil, domain.ErrMissingDeliverySlot
	}
	sel := session.Loyalty
	if !sel.IsEmpty() && !sel.Confirmed {
		return nil, domain.ErrSelectionNotConfirmed
	}

	balance, err := s.coins.Balance(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	quote, err := s.engine.Quote(session.Items, pricing.Selection{
		GiftCardValue: sel.GiftCardValue,
		CoinsToUse:    sel.CoinsToUse,
	}, balance)
	if err != nil {
		return nil, err
	}

	var coinPayment int64
	if req.PaymentMethod == domain.PaymentMethodCoins {
		coinPayment = quote.CoinSubtotal
		if sel.CoinsToUse+coinPayment > balance {
			return nil, fmt.Errorf("pay %d coins with balance %d: %w", sel.CoinsToUse+coinPayment, balance, domain.ErrInsufficientBalance)
		}
	}

	orderID := uuid.NewString()
	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	if sel.CoinsToUse > 0 {
		if err := s.coins.Spend(ctx, req.UserID, sel.CoinsToUse, orderID); err != nil {
			return nil, err
		}
		undo = append(undo, func() {
			if err := s.coins.Refund(context.WithoutCancel(ctx), req.UserID, sel.CoinsToUse, orderID); err != nil {
				log.Error("refund coins after failed checkout", zap.Int64("coins", sel.CoinsToUse), zap.Error(err))
			}
		})
	}

	if coinPayment > 0 {
		if err := s.coins.Spend(ctx, req.UserID, coinPayment, orderID); err != nil {
			rollback()
			return nil, err
		}
		undo = append(undo, func() {
			if err := s.coins.Refund(context.WithoutCancel(ctx), req.UserID, coinPayment, orderID); err != nil {
				log.Error("refund coin payment after failed checkout", zap.Int64("coins", coinPayment), zap.Error(err))
			}
		})
	}

	applied := domain.AppliedLoyalty{CoinsUsed: sel.CoinsToUse}
	if sel.GiftCardID != "" {
		gc, err := s.giftCards.RedeemGiftCard(ctx, req.UserID, sel.GiftCardID)
		if err != nil {
			rollback()
			return nil, err
		}
		applied.GiftCardID = gc.ID
		applied.GiftCardValue = gc.MonetaryValue
		undo = append(undo, func() {
			if err := s.giftCards.RestoreGiftCard(context.WithoutCancel(ctx), gc.ID); err != nil {
				log.Error("restore gift card after failed checkout", zap.String("card_id", gc.ID), zap.Error(err))
			}
		})
	}

	order, err := s.orders.Create(ctx, orders.CreateRequest{
		OrderID:       orderID,
		UserID:        req.UserID,
		Items:         session.Items,
		Loyalty:       applied,
		Delivery:      req.Delivery,
		Customer:      req.Customer,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		rollback()
		return nil, err
	}

	// The order is committed from here on; later failures are only logged.
	if _, err := s.sessions.CompleteCheckout(ctx, req.SessionID, req.UserID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error("clear session after checkout", zap.String("order_id", order.ID), zap.Error(err))
	}
	if s.notifier != nil {
		if err := s.notifier.Send(ctx, s.messages.StoreDestination(), s.messages.NewOrder(order)); err != nil {
			log.Warn("new order notification failed", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	log.Info("order placed",
		zap.String("order_id", order.ID),
		zap.Int64("coins_used", applied.CoinsUsed),
		zap.Int64("coins_paid", order.CoinsPaid()),
		zap.Bool("gift_card", applied.GiftCardID != ""))
	return order, nil
}
